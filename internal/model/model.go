// Package model provides the entity types for the Omnistudio metadata
// hierarchy: components, their parsed step trees, cross-component
// reference edges, and the per-tenant snapshot published to consumers.
package model

import "time"

// ComponentType identifies which Omnistudio table a component came from.
type ComponentType string

const (
	// TypeIntegrationProcedure is a server-executed automation component.
	TypeIntegrationProcedure ComponentType = "integration-procedure"
	// TypeOmniScript is a user-facing guided interaction composed of ordered steps.
	TypeOmniScript ComponentType = "omniscript"
	// TypeDataMapper is a configuration-only transformation component with no step tree.
	TypeDataMapper ComponentType = "data-mapper"
)

// BlockKind classifies the control-flow role of a step.
type BlockKind string

const (
	BlockNone        BlockKind = "none"         // plain step, no control-flow semantics
	BlockConditional BlockKind = "conditional"  // conditional branch
	BlockLoop        BlockKind = "loop"         // loop / iterator construct
	BlockCache       BlockKind = "cache"        // cache block
	BlockGroup       BlockKind = "block"        // generic grouping block
	BlockIPReference BlockKind = "ip-reference" // call into another component
)

// IsControlFlow reports whether the kind owns a block body (BlockSteps).
func (k BlockKind) IsControlFlow() bool {
	switch k {
	case BlockConditional, BlockLoop, BlockCache, BlockGroup:
		return true
	}
	return false
}

// Component is one automation asset: an Integration Procedure, an
// OmniScript, or a Data Mapper.
type Component struct {
	ID            string        `json:"id"`                  // Record id in the source table
	Name          string        `json:"name"`                // Display name, unique within its table
	ComponentType ComponentType `json:"componentType"`       // Which table the record came from
	Type          string        `json:"type,omitempty"`      // Business classification
	SubType       string        `json:"subType,omitempty"`   // Business sub-classification
	Version       string        `json:"version,omitempty"`   // Active version label
	UniqueID      string        `json:"uniqueId"`            // type_subType, or name when either is missing
	Steps         []Step        `json:"steps"`               // Parsed definition tree (empty for data mappers)
	ChildComponents []ComponentRef   `json:"childComponents,omitempty"` // Outgoing call edges
	ReferencedBy    []ReferenceEntry `json:"referencedBy,omitempty"`    // Incoming call edges
	ContentError  string        `json:"contentError,omitempty"` // Set when the raw definition could not be parsed
	FullyExpanded bool          `json:"fullyExpanded"`       // Set once the expander has finished this component
}

// Step is one node of a component's definition tree. A step is never
// shared by reference between two parents; every attachment is a deep
// copy so mutating one occurrence cannot leak into another.
type Step struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`      // Vendor-defined element type string
	BlockType BlockKind `json:"blockType"` // Control-flow classification

	SubSteps   []Step `json:"subSteps,omitempty"`   // Nested UI/procedure steps
	BlockSteps []Step `json:"blockSteps,omitempty"` // Body of a control-flow block
	EmptyBody  bool   `json:"emptyBody,omitempty"`  // Conditional whose body resolved to nothing

	ReferencedIP   string `json:"referencedIP,omitempty"`   // Target uniqueId/name of a component call
	HasIPReference bool   `json:"hasIPReference,omitempty"` // Set even when a block kind takes precedence
	Bundle         string `json:"bundle,omitempty"`         // Referenced Data Mapper bundle, if any

	ChildIPStructure     *ExpandedComponent `json:"childIPStructure,omitempty"` // Inlined target hierarchy
	HasExpandedStructure bool               `json:"hasExpandedStructure"`       // False at a cycle or fetch failure
	DepthLimitHit        bool               `json:"depthLimitHit,omitempty"`    // Expansion stopped at the depth cap

	ExecutionCondition string `json:"executionCondition,omitempty"` // Surfaced, never evaluated
	ShowCondition      string `json:"showCondition,omitempty"`
	BlockCondition     string `json:"blockCondition,omitempty"`
}

// ComponentRef is a summary outgoing edge recorded on the calling component.
type ComponentRef struct {
	UniqueID         string        `json:"uniqueId"`
	Name             string        `json:"name"`
	ComponentType    ComponentType `json:"componentType"`
	ReferencedInStep string        `json:"referencedInStep"`
	Level            int           `json:"level"`
	Path             []string      `json:"path,omitempty"` // uniqueIds from the root to the caller
}

// ReferenceEntry is one incoming edge recorded on the called component.
type ReferenceEntry struct {
	ParentUniqueID      string        `json:"parentUniqueId"`
	ParentName          string        `json:"parentName"`
	ParentComponentType ComponentType `json:"parentComponentType"`
	StepName            string        `json:"stepName"`
	Path                []string      `json:"path,omitempty"`
	Level               int           `json:"level"`
}

// ExpandedComponent is the fully inlined view of a component produced by
// the recursive expander. At a cycle the expander attaches a header-only
// value with FullyExpanded=false instead of re-entering the component.
type ExpandedComponent struct {
	Name          string        `json:"name"`
	UniqueID      string        `json:"uniqueId"`
	ComponentType ComponentType `json:"componentType"`
	Type          string        `json:"type,omitempty"`
	SubType       string        `json:"subType,omitempty"`
	Version       string        `json:"version,omitempty"`
	Steps         []Step        `json:"steps"`
	ContentError  string        `json:"contentError,omitempty"`
	FullyExpanded bool          `json:"fullyExpanded"`
}

// CacheSnapshot is the per-tenant result of one full reload. A snapshot
// is immutable once published; a reload builds a fresh snapshot and
// swaps it in wholesale.
type CacheSnapshot struct {
	Tenant                string               `json:"tenant"`
	IntegrationProcedures []*ExpandedComponent `json:"integrationProcedures"`
	OmniScripts           []*ExpandedComponent `json:"omniscripts"`
	DataMappers           []*ExpandedComponent `json:"dataMappers"`
	LoadedAt              time.Time            `json:"loadedAt"`
	Timing                LoadTiming           `json:"timing"`
}

// LoadTiming breaks down where a reload spent its time.
type LoadTiming struct {
	List   time.Duration `json:"list"`
	Parse  time.Duration `json:"parse"`
	Graph  time.Duration `json:"graph"`
	Expand time.Duration `json:"expand"`
	Total  time.Duration `json:"total"`
}

// LoadSummary is returned to the caller that triggered a reload.
type LoadSummary struct {
	RunID                 string     `json:"runId"`
	Tenant                string     `json:"tenant"`
	IntegrationProcedures int        `json:"integrationProcedures"`
	OmniScripts           int        `json:"omniscripts"`
	DataMappers           int        `json:"dataMappers"`
	ParseErrors           int        `json:"parseErrors"`
	RemoteFetches         int        `json:"remoteFetches"`
	CyclesSkipped         int        `json:"cyclesSkipped"`
	Unresolved            int        `json:"unresolved"`
	LoadedAt              time.Time  `json:"loadedAt"`
	Timing                LoadTiming `json:"timing"`
}

// BuildUniqueID derives the graph-resolution key for a component:
// type_subType when both classification fields are present, otherwise
// the display name.
func BuildUniqueID(typ, subType, name string) string {
	if typ != "" && subType != "" {
		return typ + "_" + subType
	}
	return name
}
