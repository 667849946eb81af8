// Package toolchain adapts external code-processing engines to a single
// Run call. The rest of the server treats a Toolchain as a black box.
package toolchain

import (
	"context"
	"errors"

	"github.com/szaher/cppmcp/internal/job"
)

// ErrNoResult means the engine ran (or failed to start) without producing
// anything the classifier can use. The executor answers it with a fallback
// invocation.
var ErrNoResult = errors.New("toolchain produced no usable result")

// Invocation is one call into the engine, rooted in a job scope.
type Invocation struct {
	Kind        job.Kind
	Dir         string
	SourcePath  string
	Source      string
	Flags       []string
	Definitions map[string]string
	Fallback    bool
}

// Output is what a successful run hands to the classifier. Tree is set only
// for parse-tree runs, Expanded only for preprocess runs.
type Output struct {
	Diagnostics []job.Diagnostic
	Tree        *job.SyntaxTree
	Expanded    string
}

// Toolchain runs one invocation. Implementations should honor ctx
// cancellation where the underlying engine allows it.
type Toolchain interface {
	Run(ctx context.Context, inv Invocation) (*Output, error)
}

// Func adapts a function to the Toolchain interface.
type Func func(ctx context.Context, inv Invocation) (*Output, error)

func (f Func) Run(ctx context.Context, inv Invocation) (*Output, error) {
	return f(ctx, inv)
}

// Composite routes parse-tree jobs to Tree and everything else to Compiler.
type Composite struct {
	Compiler Toolchain
	Tree     Toolchain
}

func (c *Composite) Run(ctx context.Context, inv Invocation) (*Output, error) {
	if inv.Kind == job.KindParseTree && c.Tree != nil {
		return c.Tree.Run(ctx, inv)
	}
	if c.Compiler == nil {
		return nil, ErrNoResult
	}
	return c.Compiler.Run(ctx, inv)
}
