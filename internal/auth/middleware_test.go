package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestMiddleware(t *testing.T) {
	const apiKey = "test-api-key"
	skipPaths := []string{"/health"}

	tests := []struct {
		name   string
		key    string
		path   string
		header string
		want   int
	}{
		{"valid bearer token", apiKey, "/mcp", "Bearer " + apiKey, http.StatusOK},
		{"wrong token", apiKey, "/mcp", "Bearer nope", http.StatusUnauthorized},
		{"missing header", apiKey, "/mcp", "", http.StatusUnauthorized},
		{"basic scheme", apiKey, "/mcp", "Basic " + apiKey, http.StatusUnauthorized},
		{"skip path", apiKey, "/health", "", http.StatusOK},
		{"auth disabled", "", "/mcp", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Middleware(tt.key, skipPaths, nil)(okHandler())
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMiddlewareLockout(t *testing.T) {
	lockout := NewLockout()
	handler := Middleware("right", nil, lockout)(okHandler())

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("Authorization", "Bearer "+key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < defaultMaxFailures; i++ {
		if rec := send("wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}

	rec := send("right")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 while locked out", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}
