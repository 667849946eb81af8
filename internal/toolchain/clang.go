package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/szaher/cppmcp/internal/job"
)

// DefaultBinary is the compiler driver looked up on PATH.
const DefaultBinary = "clang++"

// DefaultMaxOutputBytes caps how much stdout/stderr is retained per run.
const DefaultMaxOutputBytes = 4 << 20

// Clang drives a clang-compatible compiler as a subprocess.
type Clang struct {
	Binary         string
	MaxOutputBytes int
}

// NewClang returns a clang driver for binary (DefaultBinary when empty).
func NewClang(binary string) *Clang {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Clang{Binary: binary, MaxOutputBytes: DefaultMaxOutputBytes}
}

// Args builds the full argument list for an invocation.
func (c *Clang) Args(inv Invocation) []string {
	var args []string
	switch inv.Kind {
	case job.KindCompile, job.KindParseTree:
		args = append(args, "-fsyntax-only")
	case job.KindAnalyze:
		args = append(args, "--analyze", "-Xclang", "-analyzer-output=text", "-Wall", "-Wextra")
	case job.KindPreprocess:
		args = append(args, "-E", "-dD")
	}
	args = append(args, "-fno-color-diagnostics")
	args = append(args, inv.Flags...)
	args = append(args, defineArgs(inv.Definitions)...)
	args = append(args, "-x", "c++", filepath.Base(inv.SourcePath))
	return args
}

func defineArgs(defs map[string]string) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make([]string, 0, len(names))
	for _, name := range names {
		args = append(args, "-D"+name+"="+defs[name])
	}
	return args
}

func (c *Clang) Run(ctx context.Context, inv Invocation) (*Output, error) {
	limit := c.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args(inv)...)
	cmd.Dir = inv.Dir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + inv.Dir,
		"TMPDIR=" + inv.Dir,
		"LANG=C",
		"LC_ALL=C",
	}
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	diags := ParseDiagnostics(stderr.String(), inv.Dir)
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) || len(diags) == 0 {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoResult, c.Binary, runErr)
		}
	}

	out := &Output{Diagnostics: diags}
	if inv.Kind == job.KindPreprocess && runErr == nil {
		out.Expanded = FilterBuiltins(stdout.String())
	}
	return out, nil
}

// cappedBuffer keeps the first limit bytes and silently discards the rest so
// a runaway process cannot exhaust memory.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
