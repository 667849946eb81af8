package toolchain

import (
	"context"
	"fmt"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/szaher/cppmcp/internal/job"
)

// DefaultMaxDepth bounds the syntax-tree walk.
const DefaultMaxDepth = 10

// maxTextBytes limits the source excerpt attached to leaf nodes.
const maxTextBytes = 64

// TreeSitter parses C++ in process and produces a syntax-tree arena.
type TreeSitter struct {
	MaxDepth int
}

// NewTreeSitter returns a parser whose walk stops below maxDepth.
func NewTreeSitter(maxDepth int) *TreeSitter {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &TreeSitter{MaxDepth: maxDepth}
}

func (t *TreeSitter) Run(ctx context.Context, inv Invocation) (*Output, error) {
	src := []byte(inv.Source)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(cpp.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: tree-sitter: %v", ErrNoResult, err)
	}
	if tree == nil {
		return nil, ErrNoResult
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.IsNull() {
		return nil, ErrNoResult
	}

	st, diags := t.walk(root, src, inv.SourcePath)
	if len(diags) == 0 && root.HasError() {
		// The offending node sits below the depth cap.
		diags = append(diags, job.Diagnostic{
			Severity: job.SeverityError,
			Message:  "syntax error",
			File:     filepath.Base(inv.SourcePath),
			Line:     1,
			Column:   1,
		})
	}
	return &Output{Diagnostics: diags, Tree: st}, nil
}

type pending struct {
	node   *sitter.Node
	parent int
	depth  int
}

// walk flattens the tree in pre-order with an explicit stack. Children of
// nodes at MaxDepth are not visited; the tree is then marked truncated.
func (t *TreeSitter) walk(root *sitter.Node, src []byte, file string) (*job.SyntaxTree, []job.Diagnostic) {
	st := &job.SyntaxTree{}
	var diags []job.Diagnostic
	name := filepath.Base(file)

	stack := []pending{{node: root, parent: -1, depth: 0}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := p.node

		pos := n.StartPoint()
		id := len(st.Nodes)
		node := job.SyntaxNode{
			ID:     id,
			Parent: p.parent,
			Kind:   n.Type(),
			Depth:  p.depth,
			Line:   int(pos.Row) + 1,
			Column: int(pos.Column) + 1,
			Named:  n.IsNamed(),
		}
		if n.ChildCount() == 0 && n.IsNamed() {
			node.Text = excerpt(n.Content(src))
		}
		st.Nodes = append(st.Nodes, node)

		switch {
		case n.IsMissing():
			diags = append(diags, job.Diagnostic{
				Severity: job.SeverityError,
				Message:  fmt.Sprintf("missing %s", n.Type()),
				File:     name, Line: node.Line, Column: node.Column,
			})
		case n.Type() == "ERROR":
			diags = append(diags, job.Diagnostic{
				Severity: job.SeverityError,
				Message:  "syntax error",
				File:     name, Line: node.Line, Column: node.Column,
			})
		}

		count := int(n.ChildCount())
		if count == 0 {
			continue
		}
		if p.depth >= t.MaxDepth {
			st.Truncated = true
			continue
		}
		// Push in reverse so children come off the stack in source order.
		for i := count - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, pending{node: child, parent: id, depth: p.depth + 1})
			}
		}
	}
	return st, diags
}

func excerpt(s string) string {
	if len(s) > maxTextBytes {
		return s[:maxTextBytes]
	}
	return s
}
