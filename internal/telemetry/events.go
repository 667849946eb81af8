package telemetry

import "log/slog"

// JobAttrs returns the standard log attributes for a toolchain job.
func JobAttrs(kind, scope string) []any {
	attrs := []any{slog.String("operation", kind)}
	if scope != "" {
		attrs = append(attrs, slog.String("scope", scope))
	}
	return attrs
}

// RPCAttrs returns the standard log attributes for a protocol request.
func RPCAttrs(method, tool string) []any {
	attrs := []any{slog.String("method", method)}
	if tool != "" {
		attrs = append(attrs, slog.String("tool", tool))
	}
	return attrs
}
