package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniview-labs/omniview/internal/model"
)

// refStep builds an ip-reference step pointing at target.
func refStep(name, target string) model.Step {
	return model.Step{
		Name:           name,
		Type:           "Integration Procedure Action",
		BlockType:      model.BlockIPReference,
		ReferencedIP:   target,
		HasIPReference: true,
	}
}

// component builds an integration procedure with the given steps.
func component(name string, steps ...model.Step) *model.Component {
	return &model.Component{
		Name:          name,
		UniqueID:      name,
		ComponentType: model.TypeIntegrationProcedure,
		Steps:         steps,
	}
}

func TestBuild_RecordsBidirectionalEdges(t *testing.T) {
	parent := component("parent", refStep("CallChild", "child"))
	child := component("child", model.Step{Name: "work", BlockType: model.BlockNone})

	NewBuilder(nil).Build([]*model.Component{parent, child})

	require.Len(t, parent.ChildComponents, 1)
	assert.Equal(t, "child", parent.ChildComponents[0].UniqueID)
	assert.Equal(t, "CallChild", parent.ChildComponents[0].ReferencedInStep)
	assert.Equal(t, 1, parent.ChildComponents[0].Level)
	assert.Equal(t, []string{"parent"}, parent.ChildComponents[0].Path)

	require.Len(t, child.ReferencedBy, 1)
	assert.Equal(t, "parent", child.ReferencedBy[0].ParentUniqueID)
	assert.Equal(t, "CallChild", child.ReferencedBy[0].StepName)
}

func TestBuild_CycleRecordsAtMostOneDirection(t *testing.T) {
	a := component("a", refStep("CallB", "b"))
	bComp := component("b", refStep("CallA", "a"))

	builder := NewBuilder(nil)
	builder.Build([]*model.Component{a, bComp})

	// a->b is recorded; b->a is detected as the cycle both while
	// descending from a and while walking b as a root. Only one
	// direction of the mutual reference lands in the graph.
	require.Len(t, a.ChildComponents, 1)
	assert.Equal(t, "b", a.ChildComponents[0].UniqueID)
	assert.Empty(t, bComp.ChildComponents)

	require.Len(t, bComp.ReferencedBy, 1)
	assert.Empty(t, a.ReferencedBy)
	assert.Equal(t, 2, builder.CyclesSkipped())
}

func TestBuild_SelfReferenceSkipped(t *testing.T) {
	a := component("a", refStep("CallSelf", "a"))

	builder := NewBuilder(nil)
	builder.Build([]*model.Component{a})

	assert.Empty(t, a.ChildComponents)
	assert.Empty(t, a.ReferencedBy)
	assert.Equal(t, 1, builder.CyclesSkipped())
}

func TestBuild_DedupPolicy(t *testing.T) {
	// Two different steps call the same target: one childComponents
	// entry, two referencedBy entries (one per step name).
	parent := component("parent",
		refStep("FirstCall", "x"),
		refStep("SecondCall", "x"),
	)
	x := component("x", model.Step{Name: "work"})

	NewBuilder(nil).Build([]*model.Component{parent, x})

	require.Len(t, parent.ChildComponents, 1)
	require.Len(t, x.ReferencedBy, 2)
	assert.Equal(t, "FirstCall", x.ReferencedBy[0].StepName)
	assert.Equal(t, "SecondCall", x.ReferencedBy[1].StepName)

	// The same (parent, step) pair never duplicates.
	NewBuilder(nil).Build([]*model.Component{parent, x})
	assert.Len(t, parent.ChildComponents, 1)
	assert.Len(t, x.ReferencedBy, 2)
}

func TestBuild_UnresolvedReferenceLeavesNoEdge(t *testing.T) {
	parent := component("parent", refStep("CallGhost", "ghost"))

	builder := NewBuilder(nil)
	builder.Build([]*model.Component{parent})

	assert.Empty(t, parent.ChildComponents)
	assert.Equal(t, 1, builder.Unresolved())
}

func TestBuild_ResolvesByUniqueIDThenName(t *testing.T) {
	target := &model.Component{
		Name:          "Roster",
		UniqueID:      "team_roster",
		ComponentType: model.TypeIntegrationProcedure,
		Steps:         []model.Step{{Name: "work"}},
	}
	byKey := component("byKey", refStep("CallKey", "team_roster"))
	byName := component("byName", refStep("CallName", "Roster"))

	NewBuilder(nil).Build([]*model.Component{target, byKey, byName})

	require.Len(t, byKey.ChildComponents, 1)
	require.Len(t, byName.ChildComponents, 1)
	assert.Equal(t, "team_roster", byName.ChildComponents[0].UniqueID)
	assert.Len(t, target.ReferencedBy, 2)
}

func TestBuild_WalksNestedSteps(t *testing.T) {
	parent := component("parent", model.Step{
		Name:      "IfReady",
		BlockType: model.BlockConditional,
		BlockSteps: []model.Step{
			{
				Name:     "Group",
				BlockType: model.BlockGroup,
				BlockSteps: []model.Step{refStep("DeepCall", "child")},
			},
		},
	})
	child := component("child", model.Step{Name: "work"})

	NewBuilder(nil).Build([]*model.Component{parent, child})

	require.Len(t, parent.ChildComponents, 1)
	assert.Equal(t, "DeepCall", parent.ChildComponents[0].ReferencedInStep)
}

func TestBuild_DepthGuardStopsDescent(t *testing.T) {
	// A linear chain longer than the depth guard: edges are recorded
	// down to the guard and the build terminates.
	var comps []*model.Component
	for i := 0; i < 8; i++ {
		comps = append(comps, component(
			fmt.Sprintf("c%d", i),
			refStep(fmt.Sprintf("Call%d", i+1), fmt.Sprintf("c%d", i+1)),
		))
	}
	comps = append(comps, component("c8", model.Step{Name: "leaf"}))

	builder := NewBuilder(nil)
	builder.Build(comps)

	// Every direct edge still exists: each component is also walked as
	// its own root at level 0.
	for i := 0; i < 8; i++ {
		assert.Len(t, comps[i].ChildComponents, 1, "c%d outgoing edge", i)
	}

	// Seen from c0, the recorded reference levels never exceed the
	// guard.
	maxLevel := 0
	for _, comp := range comps {
		for _, entry := range comp.ReferencedBy {
			if entry.Level > maxLevel {
				maxLevel = entry.Level
			}
		}
	}
	assert.LessOrEqual(t, maxLevel, DefaultMaxDepth)
}

func TestBuild_DataMapperBundleEdge(t *testing.T) {
	mapper := &model.Component{
		Name:          "MapTeam",
		UniqueID:      "MapTeam",
		ComponentType: model.TypeDataMapper,
	}
	parent := component("parent", model.Step{
		Name:   "ExtractTeam",
		Type:   "DataRaptor Extract Action",
		Bundle: "MapTeam",
	})

	NewBuilder(nil).Build([]*model.Component{parent, mapper})

	require.Len(t, parent.ChildComponents, 1)
	assert.Equal(t, model.TypeDataMapper, parent.ChildComponents[0].ComponentType)
	require.Len(t, mapper.ReferencedBy, 1)
	assert.Equal(t, "ExtractTeam", mapper.ReferencedBy[0].StepName)
}

func TestBuild_DuplicateUniqueIDFirstWins(t *testing.T) {
	first := component("first", model.Step{Name: "work"})
	second := &model.Component{
		Name:          "second",
		UniqueID:      "first", // clashes with first's key
		ComponentType: model.TypeIntegrationProcedure,
		Steps:         []model.Step{{Name: "other"}},
	}
	caller := component("caller", refStep("Call", "first"))

	NewBuilder(nil).Build([]*model.Component{first, second, caller})

	require.Len(t, first.ReferencedBy, 1)
	assert.Empty(t, second.ReferencedBy)
}
