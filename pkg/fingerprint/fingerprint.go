// Package fingerprint normalizes error messages into short signatures used
// for failure-pattern grouping.
package fingerprint

import (
	"regexp"
	"strings"
)

const maxLength = 100

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)TimeoutError: (.+)`),
	regexp.MustCompile(`(?i)ElementNotFound: (.+)`),
	regexp.MustCompile(`(?i)AssertionError: (.+)`),
	regexp.MustCompile(`(?i)NetworkError: (.+)`),
	regexp.MustCompile(`(?i)Error: (.+?)\n`),
}

// Extract returns a truncated signature for the given error message. Known
// error-class prefixes are stripped so that messages differing only in the
// class wrapper group together; otherwise the first line is used.
func Extract(errorMessage string) string {
	if errorMessage == "" {
		return ""
	}

	for _, pattern := range patterns {
		if match := pattern.FindStringSubmatch(errorMessage); match != nil {
			return truncate(strings.TrimSpace(match[1]))
		}
	}

	firstLine, _, _ := strings.Cut(errorMessage, "\n")

	return truncate(strings.TrimSpace(firstLine))
}

func truncate(s string) string {
	if len(s) > maxLength {
		return s[:maxLength]
	}

	return s
}
