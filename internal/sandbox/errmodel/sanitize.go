package errmodel

import (
	"bufio"
	"regexp"
	"strings"
)

// Sanitization controls whether SanitizeStack rewrites host paths (spec
// §4.C.8, §7). Sanitization defaults to on; the host may disable it via
// security options for debugging.
type Sanitization bool

const (
	SanitizeOn  Sanitization = true
	SanitizeOff Sanitization = false
)

var (
	fileURLPattern = regexp.MustCompile(`file://\S+`)
	unixPathPattern = regexp.MustCompile(`(^|[\s(])(/[\w./-]+:\d+(:\d+)?)`)
	windowsPathPattern = regexp.MustCompile(`(^|[\s(])([A-Za-z]:\\[\w\\. -]+:\d+(:\d+)?)`)
)

const nativeCodeMarker = "[native code]"

// SanitizeStack rewrites file-URL, Unix absolute-path, and Windows
// absolute-path stack frames to a neutral marker, preserving the first
// (message) line intact (spec §7). It is a no-op when mode is SanitizeOff.
func SanitizeStack(stack string, mode Sanitization) string {
	if mode == SanitizeOff || stack == "" {
		return stack
	}
	scanner := bufio.NewScanner(strings.NewReader(stack))
	var out []string
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			out = append(out, line)
			first = false
			continue
		}
		out = append(out, sanitizeLine(line))
	}
	return strings.Join(out, "\n")
}

func sanitizeLine(line string) string {
	if fileURLPattern.MatchString(line) {
		return fileURLPattern.ReplaceAllString(line, nativeCodeMarker)
	}
	if windowsPathPattern.MatchString(line) {
		return windowsPathPattern.ReplaceAllString(line, "$1"+nativeCodeMarker)
	}
	if unixPathPattern.MatchString(line) {
		return unixPathPattern.ReplaceAllString(line, "$1"+nativeCodeMarker)
	}
	return line
}
