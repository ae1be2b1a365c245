package analysis

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minPrefixLength is the shortest prefix emitted in high-resolution mode.
const minPrefixLength = 3

// Standard lowercases text and splits it on runs of whitespace and hyphens.
// Empty fragments are dropped.
func Standard(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == '-' || unicode.IsSpace(r)
	})
}

// HighResolution splits text on single spaces and expands every word into
// its prefixes, so "search" yields "sea", "sear", "searc" and "search".
// Numeric words are kept verbatim and words shorter than three characters
// are dropped.
func HighResolution(text string) []string {
	words := strings.Split(text, " ")
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if word == "" {
			continue
		}
		if isNumeric(word) {
			tokens = append(tokens, word)
			continue
		}
		if utf8.RuneCountInString(word) < minPrefixLength {
			continue
		}
		runes := []rune(strings.ToLower(word))
		for i := minPrefixLength; i <= len(runes); i++ {
			tokens = append(tokens, string(runes[:i]))
		}
	}
	return tokens
}

// isNumeric reports whether the whole word reads as a number. Infinity is
// only accepted spelled out in full. Unsigned 0x, 0o and 0b integers count;
// hexadecimal floats do not.
func isNumeric(word string) bool {
	word = strings.TrimSpace(word)
	if len(word) > 2 && word[0] == '0' && strings.ContainsRune("xXoObB", rune(word[1])) {
		if strings.Contains(word, "_") {
			return false
		}
		_, err := strconv.ParseUint(word, 0, 64)
		return err == nil || errors.Is(err, strconv.ErrRange)
	}
	f, err := strconv.ParseFloat(word, 64)
	if err != nil || math.IsNaN(f) {
		return false
	}
	if math.IsInf(f, 0) {
		return strings.TrimLeft(word, "+-") == "Infinity"
	}
	return true
}
