package toolchain

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/szaher/cppmcp/internal/job"
)

var diagnosticLine = regexp.MustCompile(`^(.+?):(\d+):(\d+): (note|remark|warning|error|fatal error): (.*)$`)

// ParseDiagnostics extracts "file:line:col: severity: message" records from
// compiler output. Occurrences of scopeDir are stripped so host paths never
// reach the caller.
func ParseDiagnostics(output, scopeDir string) []job.Diagnostic {
	var diags []job.Diagnostic
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := diagnosticLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		line, err := strconv.Atoi(m[2])
		if err != nil || line <= 0 {
			continue
		}
		col, err := strconv.Atoi(m[3])
		if err != nil || col <= 0 {
			continue
		}
		sev, err := job.ParseSeverity(m[4])
		if err != nil {
			continue
		}
		diags = append(diags, job.Diagnostic{
			Severity: sev,
			Message:  stripScope(m[5], scopeDir),
			File:     stripScope(m[1], scopeDir),
			Line:     line,
			Column:   col,
		})
	}
	return diags
}

func stripScope(s, scopeDir string) string {
	if scopeDir == "" {
		return s
	}
	dir := strings.TrimSuffix(scopeDir, "/")
	s = strings.ReplaceAll(s, dir+"/", "")
	return strings.ReplaceAll(s, dir, ".")
}

// FilterBuiltins drops the "<built-in>" section from -E -dD output so only
// command-line definitions and the translation unit remain.
func FilterBuiltins(expanded string) string {
	var b strings.Builder
	inBuiltin := false
	for _, line := range strings.SplitAfter(expanded, "\n") {
		if file, ok := lineMarkerFile(line); ok {
			inBuiltin = file == "<built-in>"
			if inBuiltin {
				continue
			}
		}
		if inBuiltin || line == "" {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// lineMarkerFile parses `# <n> "<file>" ...` preprocessor line markers.
func lineMarkerFile(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "# ")
	if !ok {
		return "", false
	}
	num, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return "", false
	}
	if _, err := strconv.Atoi(num); err != nil {
		return "", false
	}
	if !strings.HasPrefix(rest, `"`) {
		return "", false
	}
	end := strings.Index(rest[1:], `"`)
	if end < 0 {
		return "", false
	}
	return rest[1 : end+1], true
}
