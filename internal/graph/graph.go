// Package graph builds the cross-component reference graph: which
// components call which, and who is called by whom. Edges are recorded
// in place on the component entities, bidirectionally.
package graph

import (
	"go.uber.org/zap"

	"github.com/omniview-labs/omniview/internal/model"
)

// DefaultMaxDepth bounds the reference walk. Chains deeper than this
// stop descending with a warning instead of failing the build.
const DefaultMaxDepth = 4

// Builder scans parsed components and records call edges.
type Builder struct {
	log      *zap.Logger
	maxDepth int

	// Counters from the most recent Build call.
	cyclesSkipped int
	unresolved    int
}

// NewBuilder returns a graph builder with the default depth guard.
func NewBuilder(log *zap.Logger) *Builder {
	return NewBuilderWithDepth(log, DefaultMaxDepth)
}

// NewBuilderWithDepth returns a graph builder with a custom depth guard.
func NewBuilderWithDepth(log *zap.Logger, maxDepth int) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Builder{log: log, maxDepth: maxDepth}
}

// CyclesSkipped reports how many cyclic edges the last Build dropped.
func (b *Builder) CyclesSkipped() int { return b.cyclesSkipped }

// Unresolved reports how many references the last Build could not resolve.
func (b *Builder) Unresolved() int { return b.unresolved }

// Build mutates childComponents/referencedBy on the given components and
// returns the same slice for fluency. Resolution is by uniqueId first,
// then by name. When two components share a uniqueId the first one in
// slice order wins; later duplicates are logged and never resolved to.
func (b *Builder) Build(components []*model.Component) []*model.Component {
	b.cyclesSkipped = 0
	b.unresolved = 0

	byUniqueID := make(map[string]*model.Component, len(components))
	byName := make(map[string]*model.Component, len(components))
	for _, comp := range components {
		if existing, ok := byUniqueID[comp.UniqueID]; ok {
			b.log.Warn("duplicate uniqueId, first match wins",
				zap.String("uniqueId", comp.UniqueID),
				zap.String("kept", existing.Name),
				zap.String("ignored", comp.Name))
		} else {
			byUniqueID[comp.UniqueID] = comp
		}
		if _, ok := byName[comp.Name]; !ok {
			byName[comp.Name] = comp
		}
	}

	walker := &refWalker{builder: b, byUniqueID: byUniqueID, byName: byName}
	for _, comp := range components {
		if len(comp.Steps) == 0 {
			continue
		}
		walker.walkComponent(comp, comp.Steps, nil, 0)
	}
	return components
}

// refWalker carries the lookup indices through one Build call.
type refWalker struct {
	builder    *Builder
	byUniqueID map[string]*model.Component
	byName     map[string]*model.Component
}

// walkComponent walks one component's step tree. path holds the
// uniqueIds of the components above the current one; level counts how
// deep into the reference chain the walk is.
func (w *refWalker) walkComponent(comp *model.Component, steps []model.Step, path []string, level int) {
	if level >= w.builder.maxDepth {
		w.builder.log.Warn("reference chain exceeds depth guard, not descending",
			zap.String("component", comp.UniqueID),
			zap.Int("level", level))
		return
	}

	for i := range steps {
		step := &steps[i]
		w.visitStep(comp, step, path, level)
		w.walkComponent(comp, step.SubSteps, path, level)
		w.walkComponent(comp, step.BlockSteps, path, level)
	}
}

// visitStep records edges for one step, then continues into the target.
func (w *refWalker) visitStep(comp *model.Component, step *model.Step, path []string, level int) {
	if step.Bundle != "" {
		// Data Mapper references resolve by bundle name and never
		// recurse: mappers have no step tree of their own.
		if target, ok := w.resolve(step.Bundle); ok && target.ComponentType == model.TypeDataMapper {
			w.record(comp, target, step.Name, path, level)
		}
	}

	if !step.HasIPReference || step.ReferencedIP == "" {
		return
	}

	target, ok := w.resolve(step.ReferencedIP)
	if !ok {
		// Left as an unresolved reference; the UI shows it as
		// non-expandable.
		w.builder.unresolved++
		w.builder.log.Info("unresolved component reference",
			zap.String("component", comp.UniqueID),
			zap.String("step", step.Name),
			zap.String("target", step.ReferencedIP))
		return
	}

	if contains(path, target.UniqueID) || target.UniqueID == comp.UniqueID || hasEdge(target, comp.UniqueID) {
		// Either the target is already above us on this walk, or the
		// opposite direction of this edge is already recorded. Only one
		// direction of a mutual reference ever lands in the graph.
		w.builder.cyclesSkipped++
		w.builder.log.Warn("reference cycle detected, edge skipped",
			zap.String("component", comp.UniqueID),
			zap.String("step", step.Name),
			zap.String("target", target.UniqueID))
		return
	}

	w.record(comp, target, step.Name, path, level)
	if len(target.Steps) > 0 {
		w.walkComponent(target, target.Steps, append(append([]string{}, path...), comp.UniqueID), level+1)
	}
}

// record adds the outgoing edge to comp and the incoming edge to target,
// both deduplicated.
func (w *refWalker) record(comp, target *model.Component, stepName string, path []string, level int) {
	edgePath := append(append([]string{}, path...), comp.UniqueID)

	hasChild := false
	for _, ref := range comp.ChildComponents {
		if ref.UniqueID == target.UniqueID {
			hasChild = true
			break
		}
	}
	if !hasChild {
		comp.ChildComponents = append(comp.ChildComponents, model.ComponentRef{
			UniqueID:         target.UniqueID,
			Name:             target.Name,
			ComponentType:    target.ComponentType,
			ReferencedInStep: stepName,
			Level:            level + 1,
			Path:             edgePath,
		})
	}

	for _, entry := range target.ReferencedBy {
		if entry.ParentUniqueID == comp.UniqueID && entry.StepName == stepName {
			return
		}
	}
	target.ReferencedBy = append(target.ReferencedBy, model.ReferenceEntry{
		ParentUniqueID:      comp.UniqueID,
		ParentName:          comp.Name,
		ParentComponentType: comp.ComponentType,
		StepName:            stepName,
		Path:                edgePath,
		Level:               level + 1,
	})
}

// resolve looks a reference key up by uniqueId, then by name.
func (w *refWalker) resolve(key string) (*model.Component, bool) {
	if comp, ok := w.byUniqueID[key]; ok {
		return comp, true
	}
	if comp, ok := w.byName[key]; ok {
		return comp, true
	}
	return nil, false
}

// hasEdge reports whether comp already records an outgoing edge to key.
func hasEdge(comp *model.Component, key string) bool {
	for _, ref := range comp.ChildComponents {
		if ref.UniqueID == key {
			return true
		}
	}
	return false
}

func contains(path []string, key string) bool {
	for _, p := range path {
		if p == key {
			return true
		}
	}
	return false
}
