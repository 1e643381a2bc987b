package rag

import (
	"regexp"
	"strconv"
	"strings"
)

var numeroRe = regexp.MustCompile(`(?i)(\d{1,4})\s*(bis|ter|[a-z])?\s*$`)

// CanonicalNumero reduces an article reference to a comparable key:
// "Art. 86A", "article 86 a" and "86A" all map to "86A".
func CanonicalNumero(ref string) string {
	m := numeroRe.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return ""
	}
	return m[1] + strings.ToUpper(m[2])
}

// splitNumero separates the numeric identifier from its suffix for ordering.
// Unparseable references sort last.
func splitNumero(ref string) (int, string) {
	m := numeroRe.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return 1 << 30, ""
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1 << 30, ""
	}
	return n, strings.ToUpper(m[2])
}

// numeroLess orders references by numeric identifier, then suffix.
func numeroLess(a, b string) bool {
	na, sa := splitNumero(a)
	nb, sb := splitNumero(b)
	if na != nb {
		return na < nb
	}
	return sa < sb
}
