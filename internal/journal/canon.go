// Package journal holds the journal record model: canonical item names,
// ordered documents and the parsed event type.
package journal

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	reCanonical = regexp.MustCompile(`^\$(.+)_name;`)
	reCategory  = regexp.MustCompile(`^\$MICRORESOURCE_CATEGORY_(.+);`)
)

// Canonicalize returns the stable key for a module, commodity or ship name.
// "$HNShockMount_Name;", "HNShockMount" and "hnshockmount" all map to
// "hnshockmount".
func Canonicalize(raw string) string {
	if raw == "" {
		return ""
	}

	name := strings.ToLower(raw)
	for {
		m := reCanonical.FindStringSubmatch(name)
		if m == nil {
			return name
		}
		name = m[1]
	}
}

// Categorize returns the on-foot inventory category for a raw category
// value, e.g. "$MICRORESOURCE_CATEGORY_Item;" becomes "Item".
func Categorize(raw string) string {
	if m := reCategory.FindStringSubmatch(raw); m != nil {
		return capitalize(m[1])
	}
	return capitalize(raw)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
