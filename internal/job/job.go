// Package job defines the values that flow through a single toolchain job:
// the request, the operation kind, diagnostic records, and the syntax-tree
// arena produced for parse-tree requests.
package job

import (
	"fmt"
	"strings"
)

// Kind selects which processing behavior a job requests.
type Kind string

const (
	KindCompile    Kind = "compile"
	KindAnalyze    Kind = "analyze"
	KindParseTree  Kind = "parse_tree"
	KindPreprocess Kind = "preprocess"
)

// Tool names exposed over the protocol. Each maps 1:1 to a Kind.
const (
	ToolCompile    = "compile_cpp"
	ToolAnalyze    = "analyze_cpp"
	ToolParseTree  = "get_ast"
	ToolPreprocess = "preprocess_cpp"
)

var toolKinds = map[string]Kind{
	ToolCompile:    KindCompile,
	ToolAnalyze:    KindAnalyze,
	ToolParseTree:  KindParseTree,
	ToolPreprocess: KindPreprocess,
}

// KindForTool returns the operation kind for a protocol tool name.
func KindForTool(name string) (Kind, bool) {
	k, ok := toolKinds[name]
	return k, ok
}

// IsValid reports whether k is one of the supported kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindCompile, KindAnalyze, KindParseTree, KindPreprocess:
		return true
	}
	return false
}

// Request is one inbound tool call after argument decoding.
type Request struct {
	Kind        Kind              `json:"kind"`
	Source      string            `json:"source"`
	Flags       []string          `json:"flags,omitempty"`
	Definitions map[string]string `json:"definitions,omitempty"`
}

// SplitOptions tokenizes a caller-supplied options string on whitespace.
func SplitOptions(options string) []string {
	return strings.Fields(options)
}

// Severity of a diagnostic record.
type Severity string

const (
	SeverityNote    Severity = "note"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// ParseSeverity maps toolchain severity labels ("fatal error", "warning", ...)
// onto a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "note", "remark":
		return SeverityNote, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "fatal", "fatal error":
		return SeverityFatal, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// IsError reports whether the severity blocks a successful compile.
func (s Severity) IsError() bool {
	return s == SeverityError || s == SeverityFatal
}

// Diagnostic is one finding reported by the toolchain. Line and Column are
// 1-based.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
}

// SyntaxNode is one entry in a syntax-tree arena. Parent is the index of the
// parent node, or -1 for the root.
type SyntaxNode struct {
	ID     int    `json:"id"`
	Parent int    `json:"parent"`
	Kind   string `json:"kind"`
	Depth  int    `json:"depth"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Named  bool   `json:"named"`
	Text   string `json:"text,omitempty"`
}

// SyntaxTree is an arena of nodes in pre-order. Nodes[0] is the root.
type SyntaxTree struct {
	Nodes     []SyntaxNode `json:"nodes"`
	Truncated bool         `json:"truncated,omitempty"`
}

// Children returns the indices of the direct children of node i.
func (t *SyntaxTree) Children(i int) []int {
	var out []int
	for j := i + 1; j < len(t.Nodes); j++ {
		if t.Nodes[j].Parent == i {
			out = append(out, j)
		}
	}
	return out
}
