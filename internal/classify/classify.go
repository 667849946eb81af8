// Package classify turns raw toolchain output into per-kind operation
// results with a success verdict.
package classify

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/szaher/cppmcp/internal/job"
	"github.com/szaher/cppmcp/internal/toolchain"
)

// Result is one of CompilationResult, AnalysisResult, ParseTreeResult or
// PreprocessResult.
type Result interface {
	Succeeded() bool
	Degraded() bool
}

// CompilationResult reports a syntax/semantic check.
type CompilationResult struct {
	Success      bool             `json:"success"`
	Errors       int              `json:"errors"`
	Warnings     int              `json:"warnings"`
	Diagnostics  []job.Diagnostic `json:"diagnostics"`
	FallbackUsed bool             `json:"fallback_used"`
}

// AnalysisResult reports static analyzer findings. The analysis itself
// always succeeds; findings are counted in Issues.
type AnalysisResult struct {
	Success      bool             `json:"success"`
	Issues       int              `json:"issues"`
	Errors       int              `json:"errors"`
	Warnings     int              `json:"warnings"`
	Diagnostics  []job.Diagnostic `json:"diagnostics"`
	FallbackUsed bool             `json:"fallback_used"`
}

// ParseTreeResult carries the syntax-tree arena.
type ParseTreeResult struct {
	Success      bool             `json:"success"`
	NodeCount    int              `json:"node_count"`
	MaxDepth     int              `json:"max_depth"`
	Truncated    bool             `json:"truncated"`
	Nodes        []job.SyntaxNode `json:"nodes"`
	Diagnostics  []job.Diagnostic `json:"diagnostics"`
	FallbackUsed bool             `json:"fallback_used"`
}

// PreprocessResult carries the expanded translation unit.
type PreprocessResult struct {
	Success      bool             `json:"success"`
	Errors       int              `json:"errors"`
	Expanded     string           `json:"expanded"`
	Includes     []string         `json:"includes"`
	Defined      []string         `json:"defined"`
	Diagnostics  []job.Diagnostic `json:"diagnostics"`
	FallbackUsed bool             `json:"fallback_used"`
}

func (r *CompilationResult) Succeeded() bool { return r.Success }
func (r *AnalysisResult) Succeeded() bool    { return r.Success }
func (r *ParseTreeResult) Succeeded() bool   { return r.Success }
func (r *PreprocessResult) Succeeded() bool  { return r.Success }

func (r *CompilationResult) Degraded() bool { return r.FallbackUsed }
func (r *AnalysisResult) Degraded() bool    { return r.FallbackUsed }
func (r *ParseTreeResult) Degraded() bool   { return r.FallbackUsed }
func (r *PreprocessResult) Degraded() bool  { return r.FallbackUsed }

// Options tune classification.
type Options struct {
	MaxDepth int // nodes deeper than this are dropped from parse trees
}

// Classify builds the result for req from the toolchain output. fallback
// marks results produced by the fallback invocation.
func Classify(req job.Request, out *toolchain.Output, fallback bool, opts Options) (Result, error) {
	if out == nil {
		return nil, fmt.Errorf("classify %s: nil output", req.Kind)
	}
	diags := out.Diagnostics
	if diags == nil {
		diags = []job.Diagnostic{}
	}
	errs, warns := Count(diags)

	switch req.Kind {
	case job.KindCompile:
		return &CompilationResult{
			Success:      errs == 0,
			Errors:       errs,
			Warnings:     warns,
			Diagnostics:  diags,
			FallbackUsed: fallback,
		}, nil
	case job.KindAnalyze:
		return &AnalysisResult{
			Success:      true,
			Issues:       errs + warns,
			Errors:       errs,
			Warnings:     warns,
			Diagnostics:  diags,
			FallbackUsed: fallback,
		}, nil
	case job.KindParseTree:
		res := &ParseTreeResult{
			Success:      out.Tree != nil,
			Nodes:        []job.SyntaxNode{},
			Diagnostics:  diags,
			FallbackUsed: fallback,
		}
		if out.Tree != nil {
			tree := Prune(out.Tree, opts.MaxDepth)
			res.Nodes = tree.Nodes
			res.Truncated = tree.Truncated
			res.NodeCount = len(tree.Nodes)
			for _, n := range tree.Nodes {
				res.MaxDepth = max(res.MaxDepth, n.Depth)
			}
		}
		return res, nil
	case job.KindPreprocess:
		return &PreprocessResult{
			Success:      errs == 0,
			Errors:       errs,
			Expanded:     out.Expanded,
			Includes:     ScanIncludes(req.Source),
			Defined:      definedNames(req.Definitions),
			Diagnostics:  diags,
			FallbackUsed: fallback,
		}, nil
	default:
		return nil, fmt.Errorf("classify: unknown kind %q", req.Kind)
	}
}

// Count tallies error/fatal and warning diagnostics.
func Count(diags []job.Diagnostic) (errs, warns int) {
	for _, d := range diags {
		switch {
		case d.Severity.IsError():
			errs++
		case d.Severity == job.SeverityWarning:
			warns++
		}
	}
	return errs, warns
}

// Prune returns a copy of tree without nodes deeper than maxDepth, with IDs
// and parent links renumbered. maxDepth <= 0 disables pruning.
func Prune(tree *job.SyntaxTree, maxDepth int) *job.SyntaxTree {
	if maxDepth <= 0 {
		return tree
	}
	out := &job.SyntaxTree{Truncated: tree.Truncated}
	remap := make(map[int]int, len(tree.Nodes))
	for _, n := range tree.Nodes {
		if n.Depth > maxDepth {
			out.Truncated = true
			continue
		}
		if n.Parent >= 0 {
			parent, ok := remap[n.Parent]
			if !ok {
				out.Truncated = true
				continue
			}
			n.Parent = parent
		}
		remap[n.ID] = len(out.Nodes)
		n.ID = len(out.Nodes)
		out.Nodes = append(out.Nodes, n)
	}
	return out
}

var includeDirective = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*include[ \t]*[<"]([^>"\n]+)[>"]`)

// ScanIncludes lists distinct #include targets in first-seen order. It reads
// the source text only; nothing is resolved.
func ScanIncludes(source string) []string {
	includes := []string{}
	seen := make(map[string]bool)
	for _, m := range includeDirective.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		includes = append(includes, name)
	}
	return includes
}

func definedNames(defs map[string]string) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
