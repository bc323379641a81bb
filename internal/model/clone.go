package model

// Deep-copy constructors. The expander attaches every resolved child as
// an independent copy; these replace the serialize/deserialize round
// trips the naive approach would need.

// Clone returns a structural deep copy of the step.
func (s Step) Clone() Step {
	out := s
	out.SubSteps = CloneSteps(s.SubSteps)
	out.BlockSteps = CloneSteps(s.BlockSteps)
	if s.ChildIPStructure != nil {
		child := s.ChildIPStructure.Clone()
		out.ChildIPStructure = &child
	}
	return out
}

// CloneSteps deep-copies a step slice. A nil input stays nil so JSON
// output keeps omitting the field.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i := range steps {
		out[i] = steps[i].Clone()
	}
	return out
}

// Clone returns a structural deep copy of the component.
func (c Component) Clone() Component {
	out := c
	out.Steps = CloneSteps(c.Steps)
	if c.ChildComponents != nil {
		out.ChildComponents = make([]ComponentRef, len(c.ChildComponents))
		for i, ref := range c.ChildComponents {
			out.ChildComponents[i] = ref.Clone()
		}
	}
	if c.ReferencedBy != nil {
		out.ReferencedBy = make([]ReferenceEntry, len(c.ReferencedBy))
		for i, ref := range c.ReferencedBy {
			out.ReferencedBy[i] = ref.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the reference, including its path slice.
func (r ComponentRef) Clone() ComponentRef {
	out := r
	out.Path = clonePath(r.Path)
	return out
}

// Clone returns a deep copy of the entry, including its path slice.
func (r ReferenceEntry) Clone() ReferenceEntry {
	out := r
	out.Path = clonePath(r.Path)
	return out
}

// Clone returns a structural deep copy of the expanded component.
func (e ExpandedComponent) Clone() ExpandedComponent {
	out := e
	out.Steps = CloneSteps(e.Steps)
	return out
}

func clonePath(path []string) []string {
	if path == nil {
		return nil
	}
	out := make([]string, len(path))
	copy(out, path)
	return out
}
