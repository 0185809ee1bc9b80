package intent

import (
	"strings"
	"unicode"
)

// normalize lower-cases text, drops thousands separators inside numbers and
// folds every other non-word rune into a single space. The result carries one
// leading and one trailing space so matchers can anchor on word starts.
func normalize(text string) string {
	runes := []rune(strings.ToLower(text))
	var b strings.Builder
	b.Grow(len(runes) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case r == ',' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			// 1,000 -> 1000
		case (r == '-' || r == '\'') && i > 0 && i+1 < len(runes) && isWordRune(runes[i-1]) && isWordRune(runes[i+1]):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// tokenize splits normalized text into words. Hyphenated compounds are split
// so "twenty-five" reads as two number words.
func tokenize(norm string) []string {
	return strings.Fields(strings.ReplaceAll(norm, "-", " "))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '\'' {
			return false
		}
	}
	return true
}

// wordAt expands a byte offset in normalized text to the surrounding word.
func wordAt(norm string, offset int) string {
	if offset < 0 || offset >= len(norm) {
		return ""
	}
	for offset < len(norm) && norm[offset] == ' ' {
		offset++
	}
	start := strings.LastIndexByte(norm[:offset], ' ') + 1
	end := strings.IndexByte(norm[offset:], ' ')
	if end < 0 {
		return norm[start:]
	}
	return norm[start : offset+end]
}
