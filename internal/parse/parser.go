// Package parse turns a component's raw nested-JSON definition into the
// normalized step tree consumed by the graph builder and the expander.
// Vendor definitions are schema-less: every read here is defensive, and
// a malformed definition fails that one component, never its siblings.
package parse

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/omniview-labs/omniview/internal/model"
)

// ParseError reports an undecodable component definition. Callers store
// it as the component's content error and keep loading.
type ParseError struct {
	Component string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse definition of %q: %v", e.Component, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// rawRoot is the outermost shape of a definition document.
type rawRoot struct {
	Children []rawChild `json:"children"`
}

// rawNode is one definition element. Children entries are either
// grouping wrappers exposing an element array, or nodes themselves.
type rawNode struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Children []rawChild      `json:"children"`
	PropSet  json.RawMessage `json:"propSetMap"`
}

// rawChild carries both shapes a child can take: a wrapper with a
// nested element array, or an inline node.
type rawChild struct {
	EleArray []rawNode       `json:"eleArray"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Children []rawChild      `json:"children"`
	PropSet  json.RawMessage `json:"propSetMap"`
}

// asNode converts an inline child into a node. Only meaningful when the
// child is not a bare wrapper.
func (c rawChild) asNode() rawNode {
	return rawNode{Name: c.Name, Type: c.Type, Children: c.Children, PropSet: c.PropSet}
}

// isInlineNode reports whether the child carries node content of its own.
func (c rawChild) isInlineNode() bool {
	return c.Name != "" || c.Type != "" || len(c.Children) > 0 || len(c.PropSet) > 0
}

// Parser parses raw component definitions into step trees.
type Parser struct {
	log *zap.Logger
}

// New returns a parser. A nil logger is replaced with a no-op logger.
func New(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log}
}

// Parse decodes one component's raw definition and returns its ordered
// top-level steps. On a decode failure it returns a *ParseError; the
// component still exists, with empty steps and the error recorded.
func (p *Parser) Parse(rawDefinition string, componentType model.ComponentType, containerName string) ([]model.Step, error) {
	var root rawRoot
	if err := json.Unmarshal([]byte(rawDefinition), &root); err != nil {
		// Some exports omit the wrapper object and emit the children
		// array directly.
		var children []rawChild
		if arrErr := json.Unmarshal([]byte(rawDefinition), &children); arrErr != nil {
			return nil, &ParseError{Component: containerName, Err: err}
		}
		root.Children = children
	}

	nodes := childrenAsNodes(root.Children)
	steps := make([]model.Step, 0, len(nodes))
	for i := range nodes {
		steps = append(steps, p.parseNode(&nodes[i], componentType, containerName))
	}
	return steps, nil
}

// parseNode converts one raw node and its subtree into a Step.
func (p *Parser) parseNode(node *rawNode, componentType model.ComponentType, containerName string) model.Step {
	props := normalizeProperties(node.PropSet)
	kind := classifyBlock(node, &props, componentType)

	step := model.Step{
		Name:               node.Name,
		Type:               node.Type,
		BlockType:          kind,
		Bundle:             props.Bundle,
		ExecutionCondition: props.ExecutionCondition,
		ShowCondition:      props.ShowCondition,
		BlockCondition:     props.BlockCondition,
	}

	// A non-empty integrationProcedureKey reclassifies a plain step as a
	// component call. An already-detected block kind keeps precedence:
	// the block stays a block and records the reference separately.
	if props.IntegrationProcedureKey != "" {
		step.HasIPReference = true
		step.ReferencedIP = props.IntegrationProcedureKey
		if !kind.IsControlFlow() {
			step.BlockType = model.BlockIPReference
			kind = model.BlockIPReference
		}
	}

	body := p.collectChildren(node, kind, componentType)
	children := make([]model.Step, 0, len(body))
	for i := range body {
		children = append(children, p.parseNode(&body[i], componentType, containerName))
	}

	if kind.IsControlFlow() {
		step.BlockSteps = children
		if kind == model.BlockConditional && len(children) == 0 {
			// No real body was found. Surface that explicitly instead of
			// fabricating a placeholder step.
			step.EmptyBody = true
		}
	} else if len(children) > 0 {
		step.SubSteps = children
	}

	return step
}

// collectChildren applies the child-collection policy:
//
//   - OmniScript step wrappers and generic blocks flatten ALL of their
//     immediate children's element arrays into one ordered list, not
//     just the first child's array.
//   - Conditionals take the first child's element array when present.
//   - Everything else takes the first child's element array when
//     present, otherwise the raw children list.
func (p *Parser) collectChildren(node *rawNode, kind model.BlockKind, componentType model.ComponentType) []rawNode {
	if len(node.Children) == 0 {
		return nil
	}

	if isProcedureStep(node, componentType) || kind == model.BlockGroup {
		return flattenElementArrays(node.Children)
	}

	if kind == model.BlockConditional {
		if arr := node.Children[0].EleArray; len(arr) > 0 {
			return arr
		}
		// Fall back to the raw children list as the body; when that
		// yields nothing real the block is left with an empty body.
		return childrenAsNodes(node.Children)
	}

	if arr := node.Children[0].EleArray; len(arr) > 0 {
		return arr
	}
	return childrenAsNodes(node.Children)
}

// flattenElementArrays collects every child's element array, in order.
// When no child exposes an element array at all, the children are taken
// as inline nodes instead so a directly-nested body is not dropped.
func flattenElementArrays(children []rawChild) []rawNode {
	var out []rawNode
	sawArray := false
	for _, child := range children {
		if len(child.EleArray) > 0 {
			sawArray = true
			out = append(out, child.EleArray...)
		}
	}
	if !sawArray {
		return childrenAsNodes(children)
	}
	return out
}

// childrenAsNodes keeps only children that carry node content.
func childrenAsNodes(children []rawChild) []rawNode {
	out := make([]rawNode, 0, len(children))
	for _, child := range children {
		if child.isInlineNode() {
			out = append(out, child.asNode())
		}
	}
	return out
}
