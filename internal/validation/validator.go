package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/szaher/cppmcp/internal/job"
)

// ErrRejected is matched by every validation failure.
var ErrRejected = errors.New("request rejected")

// Error describes why a tool call was rejected. Messages are safe to return
// to the caller.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is ErrRejected.
func (e *Error) Is(target error) bool {
	return target == ErrRejected
}

func reject(field, format string, args ...any) error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validator applies a Policy to job requests. The policy can be replaced at
// any time; in-flight checks keep the policy they started with.
type Validator struct {
	policy atomic.Pointer[Policy]
}

// New creates a Validator enforcing p. Zero limits fall back to defaults.
func New(p Policy) *Validator {
	v := &Validator{}
	v.SetPolicy(p)
	return v
}

// SetPolicy atomically replaces the enforced policy.
func (v *Validator) SetPolicy(p Policy) {
	if p.MaxSourceBytes <= 0 {
		p.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if p.MaxDefinitions <= 0 {
		p.MaxDefinitions = DefaultMaxDefinitions
	}
	denied := make([]string, len(p.DeniedFlags))
	copy(denied, p.DeniedFlags)
	p.DeniedFlags = denied
	v.policy.Store(&p)
}

// Policy returns a copy of the enforced policy.
func (v *Validator) Policy() Policy {
	return *v.policy.Load()
}

// ValidateJob runs every security check against req. The first failing check
// is returned as an *Error.
func (v *Validator) ValidateJob(req job.Request) error {
	p := v.policy.Load()

	if strings.TrimSpace(req.Source) == "" {
		return reject("sourceCode", "sourceCode must not be empty")
	}
	if n := len(req.Source); n > p.MaxSourceBytes {
		return reject("sourceCode", "sourceCode is %d bytes, exceeding the %d byte limit", n, p.MaxSourceBytes)
	}
	if err := checkFlags(req.Flags, p.DeniedFlags); err != nil {
		return err
	}
	return checkDefinitions(req.Definitions, p.MaxDefinitions)
}

// CheckFlags validates flag tokens against the current denylist.
func (v *Validator) CheckFlags(flags []string) error {
	return checkFlags(flags, v.policy.Load().DeniedFlags)
}

func checkFlags(flags, denied []string) error {
	for _, token := range flags {
		switch {
		case strings.ContainsRune(token, 0):
			return reject("options", "compiler flag contains a NUL byte")
		case strings.HasPrefix(token, "@"):
			return reject("options", "response file argument %q is not allowed", token)
		case Denied(token, denied):
			return reject("options", "compiler flag %q is not allowed", token)
		}
	}
	return nil
}

func checkDefinitions(defs map[string]string, limit int) error {
	if len(defs) > limit {
		return reject("definitions", "too many macro definitions: %d, limit is %d", len(defs), limit)
	}
	for name, value := range defs {
		if !isIdentifier(name) {
			return reject("definitions", "macro name %q is not a valid identifier", name)
		}
		if strings.ContainsAny(value, "\r\n\x00") {
			return reject("definitions", "macro %q value must be a single line", name)
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
