package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/szaher/cppmcp/internal/mcp"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, logLevel = "", ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.Contains(out, "cppmcp version "+version) || !strings.Contains(out, "2025-06-18") {
		t.Errorf("version output = %q", out)
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("rate_limit:\n  per_minute: 5\n  per_hour: 50\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("unknown_section: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    string
	}{
		{name: "defaults", args: []string{"check"}, want: "configuration is valid"},
		{name: "file", args: []string{"check", "--config", good}, want: "per_minute: 5"},
		{name: "unknown field", args: []string{"check", "--config", bad}, wantErr: true},
		{name: "bad log level", args: []string{"check", "--log-level", "loud"}, wantErr: true},
		{name: "log level override", args: []string{"check", "--log-level", "debug"}, want: "level: debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("check error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want != "" && !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want substring %q", out, tt.want)
			}
		})
	}
}

func TestProbeTargets(t *testing.T) {
	targets, err := probeTargets([]string{"http://localhost:8080/mcp"}, []string{"cppmcp stdio --config x.yaml"})
	if err != nil {
		t.Fatalf("probeTargets() error: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("len(targets) = %d, want 2", len(targets))
	}
	if targets[0].Transport != mcp.TransportHTTP || targets[0].URL != "http://localhost:8080/mcp" {
		t.Errorf("targets[0] = %+v", targets[0])
	}
	if targets[1].Transport != mcp.TransportStdio || targets[1].Command != "cppmcp" || len(targets[1].Args) != 3 {
		t.Errorf("targets[1] = %+v", targets[1])
	}

	if _, err := probeTargets(nil, nil); err == nil {
		t.Error("probeTargets() with no targets error = nil")
	}
	if _, err := probeTargets(nil, []string{"   "}); err == nil {
		t.Error("probeTargets() with blank command error = nil")
	}
}
