package integration_tests

import (
	"net/http"
	"testing"
)

var pingRequest = map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ping"}

// TestAuthRejectsWithoutKey verifies requests without a bearer token get 401.
func TestAuthRejectsWithoutKey(t *testing.T) {
	ts, _ := newTestServer(t, nil, "my-secret-key")

	resp, _ := post(t, ts.URL, "", pingRequest)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", resp.StatusCode)
	}

	resp, _ = post(t, ts.URL, "wrong-key", pingRequest)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", resp.StatusCode)
	}
}

// TestAuthSucceedsWithValidKey verifies the bearer token is accepted.
func TestAuthSucceedsWithValidKey(t *testing.T) {
	ts, _ := newTestServer(t, nil, "my-secret-key")

	resp, reply := post(t, ts.URL, "my-secret-key", pingRequest)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid key, got %d", resp.StatusCode)
	}
	if reply.Error != nil {
		t.Errorf("ping error: %+v", reply.Error)
	}
}

// TestHealthSkipsAuth verifies /health is reachable without a key.
func TestHealthSkipsAuth(t *testing.T) {
	ts, _ := newTestServer(t, nil, "my-secret-key")

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for /health, got %d", resp.StatusCode)
	}
}

// TestNoKeyConfigured verifies auth is disabled when no key is set.
func TestNoKeyConfigured(t *testing.T) {
	ts, _ := newTestServer(t, nil, "")

	resp, _ := post(t, ts.URL, "", pingRequest)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 without auth, got %d", resp.StatusCode)
	}
}
