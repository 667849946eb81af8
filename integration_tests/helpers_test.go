package integration_tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/szaher/cppmcp/internal/config"
	"github.com/szaher/cppmcp/internal/rpc"
	"github.com/szaher/cppmcp/internal/runtime"
)

type rpcReply struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
}

// newTestServer runs the full runtime (real clang and tree-sitter) behind
// an httptest server. It returns the server and its scope root.
func newTestServer(t *testing.T, cfg *config.Config, apiKey string) (*httptest.Server, string) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Scope.Root = t.TempDir()
	rt, err := runtime.New(cfg, runtime.Options{APIKey: apiKey, Version: "integration"})
	if err != nil {
		t.Fatalf("runtime.New() error: %v", err)
	}
	ts := httptest.NewServer(rt.Server().Handler())
	t.Cleanup(ts.Close)
	return ts, cfg.Scope.Root
}

func requireClang(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("clang++"); err != nil {
		t.Skip("clang++ not installed")
	}
}

func post(t *testing.T, url, apiKey string, body any) (*http.Response, *rpcReply) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/mcp", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var reply rpcReply
	if resp.StatusCode != http.StatusAccepted {
		_ = json.NewDecoder(resp.Body).Decode(&reply)
	}
	return resp, &reply
}

func toolCall(id int, tool string, args map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	}
}

// callTool posts a tools/call and decodes the text payload into out.
func callTool(t *testing.T, url, tool string, args map[string]any, out any) {
	t.Helper()
	resp, reply := post(t, url, "", toolCall(1, tool, args))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if reply.Error != nil {
		t.Fatalf("%s error: %d %s", tool, reply.Error.Code, reply.Error.Message)
	}
	var result rpc.CallToolResult
	if err := json.Unmarshal(reply.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("content = %+v, want one text item", result.Content)
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), out); err != nil {
		t.Fatalf("decode payload: %v (%s)", err, result.Content[0].Text)
	}
}
