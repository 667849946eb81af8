package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// SampleSource is the program compiled by Probe when no source is given.
const SampleSource = `#include <cstdio>

int main() {
    std::printf("hello\n");
    return 0;
}
`

// Report summarizes one probe run against a server.
type Report struct {
	Server        string          `json:"server"`
	ServerName    string          `json:"server_name"`
	ServerVersion string          `json:"server_version"`
	Tools         []string        `json:"tools"`
	Tool          string          `json:"tool"`
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// Probe lists the server's tools and calls tool with source. The call
// result is decoded to read its success flag.
func Probe(ctx context.Context, c *Client, tool, source string) (*Report, error) {
	if source == "" {
		source = SampleSource
	}
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Server: c.Name(), Tool: tool}
	report.ServerName, report.ServerVersion = c.ServerInfo()
	for _, t := range tools {
		report.Tools = append(report.Tools, t.Name)
	}
	if !slices.Contains(report.Tools, tool) {
		return report, fmt.Errorf("server %s does not advertise tool %s", c.Name(), tool)
	}

	text, err := c.CallTool(ctx, tool, map[string]any{"sourceCode": source})
	if err != nil {
		return report, err
	}
	var outcome struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(text), &outcome); err != nil {
		return report, fmt.Errorf("decode %s result: %w", tool, err)
	}
	report.Success = outcome.Success
	report.Result = json.RawMessage(text)
	return report, nil
}
