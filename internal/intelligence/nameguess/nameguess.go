// Package nameguess picks a display name for a resume from its first lines.
// Output is for reports only and never influences span resolution.
package nameguess

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxNameChars = 60
	// Unknown is returned for blank text.
	Unknown = "Unknown"
)

var (
	contactLike = regexp.MustCompile(`@|https?://|linkedin\.com|github\.com|\+?\d`)
	leadingName = regexp.MustCompile(`^([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})\b`)
)

// Guess scans lines in order and returns the first that looks like a name.
func Guess(text string) string {
	title := cases.Title(language.Und)
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		words := strings.Fields(s)
		short := len(words) >= 2 && len(words) <= 4 && utf8.RuneCountInString(s) <= maxNameChars

		if short && titledWords(words) >= 2 {
			return s
		}
		if short && isUpper(s) {
			return title.String(s)
		}
		if contactLike.MatchString(s) {
			continue
		}
		if m := leadingName.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	for _, line := range lines {
		if s := strings.TrimSpace(line); s != "" {
			return truncate(s, maxNameChars)
		}
	}
	return Unknown
}

func titledWords(words []string) int {
	n := 0
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if unicode.IsUpper(r) {
			n++
		}
	}
	return n
}

// isUpper reports whether s has at least one cased letter and no lower-case
// ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
