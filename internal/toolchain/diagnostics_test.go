package toolchain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/szaher/cppmcp/internal/job"
)

func TestParseDiagnostics(t *testing.T) {
	output := strings.Join([]string{
		"/tmp/cppmcp-01abc/main.cpp:3:5: error: use of undeclared identifier 'x'",
		"    x = 1;",
		"    ^",
		"/tmp/cppmcp-01abc/main.cpp:1:10: warning: unused variable 'y' [-Wunused-variable]",
		"main.cpp:2:1: note: previous definition is here",
		"main.cpp:1:1: fatal error: 'nope.h' file not found",
		"clang: error: no input files",
		"1 error generated.",
	}, "\n")

	diags := ParseDiagnostics(output, "/tmp/cppmcp-01abc")
	want := []job.Diagnostic{
		{Severity: job.SeverityError, Message: "use of undeclared identifier 'x'", File: "main.cpp", Line: 3, Column: 5},
		{Severity: job.SeverityWarning, Message: "unused variable 'y' [-Wunused-variable]", File: "main.cpp", Line: 1, Column: 10},
		{Severity: job.SeverityNote, Message: "previous definition is here", File: "main.cpp", Line: 2, Column: 1},
		{Severity: job.SeverityFatal, Message: "'nope.h' file not found", File: "main.cpp", Line: 1, Column: 1},
	}
	if len(diags) != len(want) {
		t.Fatalf("ParseDiagnostics() returned %d records, want %d: %+v", len(diags), len(want), diags)
	}
	for i := range want {
		if diags[i] != want[i] {
			t.Errorf("diags[%d] = %+v, want %+v", i, diags[i], want[i])
		}
	}
}

func TestParseDiagnosticsStripsScopeFromMessages(t *testing.T) {
	diags := ParseDiagnostics("/s/x/main.cpp:1:1: error: in file /s/x/main.cpp", "/s/x")
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics", len(diags))
	}
	if strings.Contains(diags[0].Message, "/s/x") {
		t.Errorf("Message = %q leaks scope path", diags[0].Message)
	}
}

func TestFilterBuiltins(t *testing.T) {
	expanded := strings.Join([]string{
		`# 1 "main.cpp"`,
		`# 1 "<built-in>" 1`,
		`# 1 "<built-in>" 3`,
		`#define __clang__ 1`,
		`#define __cplusplus 201703L`,
		`# 1 "<command line>" 1`,
		`#define EMPTY `,
		`#define ANSWER 42`,
		`# 1 "<built-in>" 2`,
		`# 1 "main.cpp" 2`,
		`int x = 42;`,
		``,
	}, "\n")

	got := FilterBuiltins(expanded)
	if strings.Contains(got, "__clang__") || strings.Contains(got, "<built-in>") {
		t.Errorf("FilterBuiltins() kept builtin section:\n%s", got)
	}
	for _, want := range []string{"#define EMPTY", "#define ANSWER 42", "int x = 42;"} {
		if !strings.Contains(got, want) {
			t.Errorf("FilterBuiltins() missing %q:\n%s", want, got)
		}
	}
}

func TestClangArgs(t *testing.T) {
	c := NewClang("")
	args := c.Args(Invocation{
		Kind:        job.KindPreprocess,
		SourcePath:  "/scope/main.cpp",
		Flags:       []string{"-std=c++20"},
		Definitions: map[string]string{"B": "", "A": "1"},
	})
	got := strings.Join(args, " ")
	want := "-E -dD -fno-color-diagnostics -std=c++20 -DA=1 -DB= -x c++ main.cpp"
	if got != want {
		t.Errorf("Args() = %q, want %q", got, want)
	}

	args = c.Args(Invocation{Kind: job.KindAnalyze, SourcePath: "main.cpp"})
	if args[0] != "--analyze" {
		t.Errorf("Args()[0] = %q, want --analyze", args[0])
	}
}

func TestClangMissingBinaryIsNoResult(t *testing.T) {
	c := NewClang("cppmcp-no-such-compiler")
	_, err := c.Run(context.Background(), Invocation{Kind: job.KindCompile, Dir: t.TempDir(), SourcePath: "main.cpp"})
	if !errors.Is(err, ErrNoResult) {
		t.Errorf("Run() error = %v, want ErrNoResult", err)
	}
}

func TestCompositeRoutes(t *testing.T) {
	var got []string
	tag := func(name string) Toolchain {
		return Func(func(context.Context, Invocation) (*Output, error) {
			got = append(got, name)
			return &Output{}, nil
		})
	}
	c := &Composite{Compiler: tag("clang"), Tree: tag("tree")}
	for _, k := range []job.Kind{job.KindCompile, job.KindParseTree, job.KindPreprocess} {
		if _, err := c.Run(context.Background(), Invocation{Kind: k}); err != nil {
			t.Fatal(err)
		}
	}
	if strings.Join(got, ",") != "clang,tree,clang" {
		t.Errorf("routing = %v", got)
	}
}
