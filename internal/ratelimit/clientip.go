package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the identity shared by every request that carries no
// usable address.
const UnknownClient = "unknown"

// ClientID extracts the rate limit identity from the request: the first
// X-Forwarded-For entry, then X-Real-IP, then the peer address.
func ClientID(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}

	if addr := r.RemoteAddr; addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}

	return UnknownClient
}
