package integration_tests

import (
	"strings"
	"testing"

	"github.com/szaher/cppmcp/internal/classify"
	"github.com/szaher/cppmcp/internal/job"
)

func TestCompileWithClang(t *testing.T) {
	requireClang(t)
	ts, _ := newTestServer(t, nil, "")

	tests := []struct {
		name        string
		source      string
		wantSuccess bool
	}{
		{name: "valid program", source: "int main() { return 0; }\n", wantSuccess: true},
		{name: "undeclared identifier", source: "int main() { return undeclared; }\n", wantSuccess: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res classify.CompilationResult
			callTool(t, ts.URL, job.ToolCompile, map[string]any{"sourceCode": tt.source}, &res)
			if res.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v (%+v)", res.Success, tt.wantSuccess, res.Diagnostics)
			}
			if !tt.wantSuccess && res.Errors == 0 {
				t.Error("errors = 0 for failing source")
			}
			for _, d := range res.Diagnostics {
				if strings.Contains(d.File, "cppmcp-") {
					t.Errorf("diagnostic leaks scope path: %q", d.File)
				}
			}
		})
	}
}

func TestPreprocessWithDefinitions(t *testing.T) {
	requireClang(t)
	ts, _ := newTestServer(t, nil, "")

	var res classify.PreprocessResult
	callTool(t, ts.URL, job.ToolPreprocess, map[string]any{
		"sourceCode":  "int answer = ANSWER;\n",
		"definitions": map[string]any{"ANSWER": "42"},
	}, &res)
	if !res.Success {
		t.Fatalf("success = false: %+v", res.Diagnostics)
	}
	if !strings.Contains(res.Expanded, "int answer = 42;") {
		t.Errorf("expanded output does not contain substituted macro:\n%s", res.Expanded)
	}
}

func TestAnalyzeFindsNullDereference(t *testing.T) {
	requireClang(t)
	ts, _ := newTestServer(t, nil, "")

	var res classify.AnalysisResult
	callTool(t, ts.URL, job.ToolAnalyze, map[string]any{
		"sourceCode": "int main() {\n  int *p = 0;\n  return *p;\n}\n",
	}, &res)
	if !res.Success {
		t.Errorf("success = false, analysis always succeeds")
	}
	if res.Issues == 0 {
		t.Errorf("issues = 0, want null dereference finding")
	}
}

// TestSyntaxTree runs on tree-sitter alone and needs no compiler.
func TestSyntaxTree(t *testing.T) {
	ts, _ := newTestServer(t, nil, "")

	var res classify.ParseTreeResult
	callTool(t, ts.URL, job.ToolParseTree, map[string]any{
		"sourceCode": "int add(int a, int b) { return a + b; }\n",
	}, &res)
	if !res.Success {
		t.Fatalf("success = false: %+v", res.Diagnostics)
	}
	if res.NodeCount == 0 || len(res.Nodes) == 0 {
		t.Fatalf("empty tree: %+v", res)
	}
	if res.Nodes[0].Kind != "translation_unit" {
		t.Errorf("root kind = %q, want translation_unit", res.Nodes[0].Kind)
	}

	callTool(t, ts.URL, job.ToolParseTree, map[string]any{"sourceCode": "int main( {\n"}, &res)
	if res.Success {
		t.Error("success = true for malformed source")
	}
}
