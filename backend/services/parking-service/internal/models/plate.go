package models

import (
	"strings"
	"unicode"
)

const similarSuffixLen = 4

// NormalizePlate upper-cases a recognized plate and strips separators and whitespace.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsSpace(r) || r == '-' || r == '.' || r == '_' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// PlateSuffix returns the trailing serial digits used to pre-filter similar plates.
func PlateSuffix(plate string) string {
	runes := []rune(plate)
	if len(runes) <= similarSuffixLen {
		return plate
	}
	return string(runes[len(runes)-similarSuffixLen:])
}

// SimilarPlate reports whether candidate plausibly is the same vehicle as recognized with one
// misread character: same length, identical serial suffix, and at most one differing position
// in the prefix. Identical plates are not considered similar.
func SimilarPlate(recognized, candidate string) bool {
	a, b := []rune(recognized), []rune(candidate)
	if len(a) != len(b) || len(a) <= similarSuffixLen {
		return false
	}
	split := len(a) - similarSuffixLen
	if string(a[split:]) != string(b[split:]) {
		return false
	}
	diff := 0
	for i := 0; i < split; i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return diff == 1
}
