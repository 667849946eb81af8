package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchDenied reports whether token is blocked by the denylist entry.
//
// A token matches when any of these hold:
//   - it equals the entry, ignoring case;
//   - the entry ends with "=" or "," and the token starts with it, ignoring case;
//   - the token is the entry followed by "=" and a value;
//   - the entry has no "=", the token starts with it, and the token either
//     ends there or continues with a non-letter. This keeps "-p" from
//     blocking "-pedantic" while still blocking "-p1" or "-p/x".
//
// On top of these, a token that starts with an entry and carries a joined
// value containing a path separator is blocked ("-Iinc/../../etc",
// "-oa/../../x").
func MatchDenied(token, entry string) bool {
	if entry == "" {
		return false
	}
	if strings.EqualFold(token, entry) {
		return true
	}
	if strings.HasSuffix(entry, "=") || strings.HasSuffix(entry, ",") {
		return hasPrefixFold(token, entry)
	}
	if strings.HasPrefix(token, entry+"=") {
		return true
	}
	if !strings.Contains(entry, "=") && strings.HasPrefix(token, entry) {
		rest := token[len(entry):]
		if rest == "" || strings.ContainsAny(rest, `/\`) {
			return true
		}
		next, _ := utf8.DecodeRuneInString(rest)
		return !unicode.IsLetter(next)
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// spellings returns the forms of token checked against the denylist: the
// token itself and, for clang's double-dash aliases ("--include=x"), the
// single-dash form.
func spellings(token string) []string {
	if rest, ok := strings.CutPrefix(token, "--"); ok && rest != "" {
		return []string{token, "-" + rest}
	}
	return []string{token}
}

// Denied reports whether any spelling of token matches any denylist entry.
func Denied(token string, denylist []string) bool {
	for _, form := range spellings(token) {
		for _, entry := range denylist {
			if MatchDenied(form, entry) {
				return true
			}
		}
	}
	return false
}
