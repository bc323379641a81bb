package parse

import (
	"strings"

	"github.com/omniview-labs/omniview/internal/model"
)

// classifyBlock assigns a control-flow kind to one raw node. Pure and
// deterministic: no I/O, no logging.
//
// The priority order is load-bearing. The structural heuristic runs
// before any keyword matching, and it excludes multi-child container
// blocks — that exclusion is what keeps an ordinary "Block" element with
// several child groups from being misclassified as a conditional.
func classifyBlock(node *rawNode, props *propertySet, componentType model.ComponentType) model.BlockKind {
	name := strings.ToLower(node.Name)
	typ := strings.ToLower(node.Type)
	isBlockType := typ == "block"

	// 1. Structural heuristic: first child exposes a nested element
	// array, the node is not an OmniScript step wrapper, and it is not a
	// container block with more than one child group.
	if len(node.Children) > 0 &&
		len(node.Children[0].EleArray) > 0 &&
		!isProcedureStep(node, componentType) &&
		!(isBlockType && len(node.Children) > 1) {
		return model.BlockConditional
	}

	// 2-3. Keyword matches on name, then type.
	if strings.Contains(name, "if") {
		return model.BlockConditional
	}
	if strings.Contains(typ, "conditional") {
		return model.BlockConditional
	}

	// 4. Exact container block with at least one child group.
	if isBlockType && len(node.Children) >= 1 {
		return model.BlockGroup
	}

	// 5-6. Loop and cache semantics by keyword.
	if indicatesLoop(typ) || indicatesLoop(name) {
		return model.BlockLoop
	}
	if strings.Contains(typ, "cache") || strings.Contains(name, "cache") {
		return model.BlockCache
	}

	// 7. Property-bag markers.
	if props.LoopMarker {
		return model.BlockLoop
	}
	if props.CacheMarker {
		return model.BlockCache
	}
	if props.BlockCondition != "" && len(node.Children) == 0 {
		return model.BlockConditional
	}

	return model.BlockNone
}

// isProcedureStep reports whether the node is an OmniScript step
// wrapper, the UI-level grouping element whose children are flattened
// rather than treated as a conditional body.
func isProcedureStep(node *rawNode, componentType model.ComponentType) bool {
	return componentType == model.TypeOmniScript && strings.EqualFold(node.Type, "step")
}

// indicatesLoop matches loop-ish vendor vocabulary. "for" is only
// honored as a standalone token so that element names like
// "Transform" or "Format" do not read as loops.
func indicatesLoop(s string) bool {
	if strings.Contains(s, "loop") || strings.Contains(s, "foreach") || strings.Contains(s, "while") {
		return true
	}
	for _, token := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if token == "for" {
			return true
		}
	}
	return false
}
