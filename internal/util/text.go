package util

import (
	"regexp"
	"strings"
)

var (
	escapedBreaks = strings.NewReplacer(`\n`, " ", `\r`, " ", `\t`, " ")
	whitespace    = regexp.MustCompile(`\s+`)
)

// CleanText flattens imported text onto one line. Spreadsheet exports carry
// both real line breaks and escaped ones.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = escapedBreaks.Replace(s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
