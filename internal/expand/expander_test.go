package expand

import (
	"context"
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

func component(name string, steps ...model.Step) *model.Component {
	return &model.Component{
		Name:          name,
		UniqueID:      name,
		ComponentType: model.TypeIntegrationProcedure,
		Steps:         steps,
	}
}

// mapSnapshot is a SnapshotLookup over a fixed component map.
type mapSnapshot map[string]*model.ExpandedComponent

func (m mapSnapshot) LookupExpanded(key string) (*model.ExpandedComponent, bool) {
	ec, ok := m[key]
	return ec, ok
}

// mapFetch builds a FetchFn over a component map, counting calls.
func mapFetch(comps map[string]*model.Component, calls *int) FetchFn {
	return func(_ context.Context, key string) (*model.Component, bool) {
		*calls++
		comp, ok := comps[key]
		return comp, ok
	}
}

func serialOptions() Options {
	opts := DefaultOptions()
	opts.Concurrency = 1
	return opts
}

func TestExpandAll_EmbedsReferencedHierarchy(t *testing.T) {
	parent := component("parent", refStep("CallChild", "child"))
	child := component("child", model.Step{Name: "work", Type: "Set Values"})

	e := New(nil, serialOptions(), nil)
	out, stats := e.ExpandAll(context.Background(), []*model.Component{parent, child}, nil)
	require.Len(t, out, 2)

	expandedParent := out[0]
	assert.True(t, expandedParent.FullyExpanded)
	require.Len(t, expandedParent.Steps, 1)

	step := expandedParent.Steps[0]
	assert.True(t, step.HasExpandedStructure)
	require.NotNil(t, step.ChildIPStructure)
	assert.Equal(t, "child", step.ChildIPStructure.UniqueID)
	require.Len(t, step.ChildIPStructure.Steps, 1)
	assert.Equal(t, "work", step.ChildIPStructure.Steps[0].Name)

	assert.Zero(t, stats.RemoteFetches)
	assert.Zero(t, stats.Unresolved)
}

func TestExpandAll_CopiesAreIndependent(t *testing.T) {
	p1 := component("p1", refStep("Call1", "shared"))
	p2 := component("p2", refStep("Call2", "shared"))
	shared := component("shared", model.Step{Name: "work"})

	e := New(nil, serialOptions(), nil)
	out, _ := e.ExpandAll(context.Background(), []*model.Component{p1, p2, shared}, nil)

	first := out[0].Steps[0].ChildIPStructure
	second := out[1].Steps[0].ChildIPStructure
	require.NotNil(t, first)
	require.NotNil(t, second)

	// Identical structure, distinct memory.
	assert.Equal(t, first, second)
	first.Steps[0].Name = "mutated"
	assert.Equal(t, "work", second.Steps[0].Name)
}

func TestExpandAll_CycleProducesFiniteTree(t *testing.T) {
	a := component("a", refStep("CallB", "b"))
	b := component("b", refStep("CallA", "a"))

	e := New(nil, serialOptions(), nil)
	out, stats := e.ExpandAll(context.Background(), []*model.Component{a, b}, nil)

	expandedA := out[0]
	require.Len(t, expandedA.Steps, 1)
	childB := expandedA.Steps[0].ChildIPStructure
	require.NotNil(t, childB)
	assert.True(t, expandedA.Steps[0].HasExpandedStructure)
	require.Len(t, childB.Steps, 1)

	// The back-reference is present but unexpanded.
	backRef := childB.Steps[0]
	require.NotNil(t, backRef.ChildIPStructure)
	assert.Equal(t, "a", backRef.ChildIPStructure.UniqueID)
	assert.False(t, backRef.HasExpandedStructure)
	assert.False(t, backRef.ChildIPStructure.FullyExpanded)
	assert.Empty(t, backRef.ChildIPStructure.Steps)

	assert.GreaterOrEqual(t, stats.CyclesHit, 1)
}

func TestExpandAll_SelfReference(t *testing.T) {
	a := component("a", refStep("CallSelf", "a"))

	e := New(nil, serialOptions(), nil)
	out, stats := e.ExpandAll(context.Background(), []*model.Component{a}, nil)

	step := out[0].Steps[0]
	require.NotNil(t, step.ChildIPStructure)
	assert.False(t, step.HasExpandedStructure)
	assert.Equal(t, 1, stats.CyclesHit)
}

func TestExpandAll_Idempotence(t *testing.T) {
	a := component("a", refStep("CallB", "b"), refStep("CallC", "c"))
	b := component("b", refStep("CallC", "c"))
	c := component("c", model.Step{Name: "leaf"})

	e := New(nil, serialOptions(), nil)
	first, _ := e.ExpandAll(context.Background(), []*model.Component{a, b, c}, nil)
	second, _ := e.ExpandAll(context.Background(), []*model.Component{a, b, c}, nil)

	require.Equal(t, first, second)

	// Two steps referencing the same target observe identical
	// structures within one run as well.
	fromA := first[0].Steps[1].ChildIPStructure
	fromB := first[0].Steps[0].ChildIPStructure.Steps[0].ChildIPStructure
	assert.Equal(t, fromA, fromB)
}

func TestExpandAll_DepthBound(t *testing.T) {
	// A chain of 15 linearly-referencing components, only the head
	// passed as a root, the rest resolvable by fetch. Expansion stops
	// exactly at the depth limit; deeper components stay as unresolved
	// references, not absent steps.
	remote := make(map[string]*model.Component)
	for i := 2; i <= 15; i++ {
		name := fmt.Sprintf("c%d", i)
		if i == 15 {
			remote[name] = component(name, model.Step{Name: "leaf"})
		} else {
			remote[name] = component(name, refStep("CallNext", fmt.Sprintf("c%d", i+1)))
		}
	}
	head := component("c1", refStep("CallNext", "c2"))

	calls := 0
	e := New(nil, serialOptions(), nil)
	out, stats := e.ExpandAll(context.Background(), []*model.Component{head}, mapFetch(remote, &calls))

	depth := 1
	node := out[0]
	for {
		require.Len(t, node.Steps, 1, "component at depth %d", depth)
		step := node.Steps[0]
		if step.ChildIPStructure == nil {
			assert.True(t, step.DepthLimitHit)
			assert.Equal(t, fmt.Sprintf("c%d", depth+1), step.ReferencedIP)
			break
		}
		node = step.ChildIPStructure
		depth++
	}
	assert.Equal(t, 10, depth)
	assert.Equal(t, 1, stats.DepthLimited)
	// Only the nine expanded tail components were fetched.
	assert.Equal(t, 9, calls)
}

func TestExpandAll_SnapshotConsultedBeforeFetch(t *testing.T) {
	// A 50-component graph: one hub referencing 49 spokes. On a cold
	// cache every spoke is fetched; with the published snapshot warm,
	// the second run issues zero additional fetches.
	remote := make(map[string]*model.Component)
	var hubSteps []model.Step
	for i := 1; i < 50; i++ {
		name := fmt.Sprintf("spoke%d", i)
		remote[name] = component(name, model.Step{Name: "work"})
		hubSteps = append(hubSteps, refStep(fmt.Sprintf("Call%d", i), name))
	}
	hub := component("hub", hubSteps...)

	calls := 0
	cold := New(nil, serialOptions(), nil)
	coldOut, coldStats := cold.ExpandAll(context.Background(), []*model.Component{hub}, mapFetch(remote, &calls))
	assert.Equal(t, 49, coldStats.RemoteFetches)
	assert.Equal(t, 49, calls)

	snapshot := make(mapSnapshot)
	snapshot["hub"] = coldOut[0]
	for i := range coldOut[0].Steps {
		child := coldOut[0].Steps[i].ChildIPStructure
		require.NotNil(t, child)
		snapshot[child.UniqueID] = child
	}

	calls = 0
	warm := New(nil, serialOptions(), snapshot)
	warmOut, warmStats := warm.ExpandAll(context.Background(), []*model.Component{hub}, mapFetch(remote, &calls))
	assert.Zero(t, warmStats.RemoteFetches)
	assert.Zero(t, calls)
	assert.Equal(t, coldOut, warmOut)
}

func TestExpandAll_FetchFailureDegradesStep(t *testing.T) {
	parent := component("parent",
		refStep("CallMissing", "ghost"),
		model.Step{Name: "after", Type: "Set Values"},
	)

	e := New(nil, serialOptions(), nil)
	out, stats := e.ExpandAll(context.Background(), []*model.Component{parent},
		func(_ context.Context, _ string) (*model.Component, bool) { return nil, false })

	require.Len(t, out[0].Steps, 2)
	assert.Nil(t, out[0].Steps[0].ChildIPStructure)
	assert.False(t, out[0].Steps[0].HasExpandedStructure)
	// The rest of the tree still resolves.
	assert.Equal(t, "after", out[0].Steps[1].Name)
	assert.True(t, out[0].FullyExpanded)
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 1, stats.RemoteFetches)
}

func TestExpandAll_MemoAvoidsRepeatFetches(t *testing.T) {
	remote := map[string]*model.Component{
		"shared": component("shared", model.Step{Name: "work"}),
	}
	p1 := component("p1", refStep("Call1", "shared"))
	p2 := component("p2", refStep("Call2", "shared"))

	calls := 0
	e := New(nil, serialOptions(), nil)
	_, stats := e.ExpandAll(context.Background(), []*model.Component{p1, p2}, mapFetch(remote, &calls))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, stats.RemoteFetches)
}

func TestExpandAll_ExpandsNestedStepBodies(t *testing.T) {
	parent := component("parent", model.Step{
		Name:      "IfReady",
		BlockType: model.BlockConditional,
		BlockSteps: []model.Step{
			refStep("NestedCall", "child"),
		},
	})
	child := component("child", model.Step{Name: "work"})

	e := New(nil, serialOptions(), nil)
	out, _ := e.ExpandAll(context.Background(), []*model.Component{parent, child}, nil)

	nested := out[0].Steps[0].BlockSteps[0]
	require.NotNil(t, nested.ChildIPStructure)
	assert.Equal(t, "child", nested.ChildIPStructure.UniqueID)
	assert.True(t, nested.HasExpandedStructure)
}

func TestExpandAll_ConcurrentRootsShareMemo(t *testing.T) {
	// Many roots all referencing one shared leaf, expanded with the
	// default parallelism: every occurrence observes the identical
	// structure.
	shared := component("shared", model.Step{Name: "work"})
	var roots []*model.Component
	for i := 0; i < 16; i++ {
		roots = append(roots, component(fmt.Sprintf("root%d", i), refStep("Call", "shared")))
	}
	roots = append(roots, shared)

	e := New(nil, DefaultOptions(), nil)
	out, _ := e.ExpandAll(context.Background(), roots, nil)

	want := out[0].Steps[0].ChildIPStructure
	require.NotNil(t, want)
	for i := 1; i < 16; i++ {
		assert.Equal(t, want, out[i].Steps[0].ChildIPStructure, "root%d", i)
	}
}
