package util

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// GenerateSKU builds an acronym from the first letter of every word and
// appends the next free two digit sequence among existing SKUs.
func GenerateSKU(description string, existing []string) string {
	var b strings.Builder
	for _, word := range strings.Fields(description) {
		r := unicode.ToUpper([]rune(word)[0])
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		return ""
	}

	next := 1
	for _, sku := range existing {
		if !strings.HasPrefix(sku, base) {
			continue
		}
		n, err := strconv.Atoi(sku[len(base):])
		if err != nil {
			n = 0
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%02d", base, next)
}
