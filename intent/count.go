package intent

import (
	"errors"
	"strconv"
	"strings"
)

// countSpan locates a count expression in a token list. start and end are
// token indexes; end is exclusive.
type countSpan struct {
	value int
	start int
	end   int
	found bool
}

// findCount applies the count rules in priority order: a digit run next to a
// word, a word-number followed by a scale word, a bare number word from the
// vocabulary table, and finally the vocabulary default. Found counts are
// clamped to the vocabulary limit.
func (e *Extractor) findCount(tokens []string) countSpan {
	for _, rule := range []func([]string) (countSpan, bool){e.digitCount, e.scaledCount, e.wordCount} {
		if s, ok := rule(tokens); ok {
			s.value = min(s.value, e.vocab.Numbers.Limit())
			return s
		}
	}
	return countSpan{value: e.vocab.Numbers.Default}
}

// atoi parses a digit run, saturating at the count limit.
func (e *Extractor) atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if errors.Is(err, strconv.ErrRange) {
		return e.vocab.Numbers.Limit(), true
	}
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (e *Extractor) digitCount(tokens []string) (countSpan, bool) {
	for i := 0; i+1 < len(tokens); i++ {
		if !isDigits(tokens[i]) || !isAlpha(tokens[i+1]) {
			continue
		}
		n, ok := e.atoi(tokens[i])
		if !ok {
			continue
		}
		n, end, ok := e.applyScales(n, tokens, i+1)
		if !ok {
			continue
		}
		return countSpan{value: n, start: i, end: end, found: true}, true
	}
	return countSpan{}, false
}

func (e *Extractor) scaledCount(tokens []string) (countSpan, bool) {
	for j := 1; j < len(tokens); j++ {
		if _, ok := e.vocab.scales[tokens[j]]; !ok {
			continue
		}
		base, start, ok := e.baseBefore(tokens, j)
		if !ok {
			continue
		}
		n, end, ok := e.applyScales(base, tokens, j)
		if !ok {
			continue
		}
		return countSpan{value: n, start: start, end: end, found: true}, true
	}
	return countSpan{}, false
}

// baseBefore reads the multiplicand that precedes the scale word at index j.
func (e *Extractor) baseBefore(tokens []string, j int) (int, int, bool) {
	prev := tokens[j-1]
	if isDigits(prev) {
		n, ok := e.atoi(prev)
		if !ok {
			return 0, 0, false
		}
		return n, j - 1, true
	}
	if e.vocab.articles[prev] {
		return 1, j - 1, true
	}
	v, ok := e.numberWord(prev)
	if !ok {
		return 0, 0, false
	}
	if isUnit(v) && j-2 >= 0 {
		if tens, ok := e.numberWord(tokens[j-2]); ok && isTens(tens) {
			return tens + v, j - 2, true
		}
	}
	return v, j - 1, true
}

// applyScales multiplies n by every consecutive scale word starting at
// tokens[i] ("two hundred thousand"), saturating at the count limit.
func (e *Extractor) applyScales(n int, tokens []string, i int) (int, int, bool) {
	limit := e.vocab.Numbers.Limit()
	for i < len(tokens) {
		scale, ok := e.vocab.scales[tokens[i]]
		if !ok {
			break
		}
		if scale <= 0 {
			return 0, 0, false
		}
		if n > limit/scale {
			n = limit
		} else {
			n *= scale
		}
		i++
	}
	return min(n, limit), i, true
}

func (e *Extractor) wordCount(tokens []string) (countSpan, bool) {
	for _, nw := range e.vocab.Numbers.Words {
		words := strings.Fields(strings.ToLower(nw.Word))
		k := indexTokens(tokens, words)
		if k < 0 || nw.Value <= 0 {
			continue
		}
		span := countSpan{value: nw.Value, start: k, end: k + len(words), found: true}
		if len(words) == 1 {
			switch {
			case isTens(nw.Value) && span.end < len(tokens):
				if unit, ok := e.numberWord(tokens[span.end]); ok && isUnit(unit) {
					span.value += unit
					span.end++
				}
			case isUnit(nw.Value) && k > 0:
				if tens, ok := e.numberWord(tokens[k-1]); ok && isTens(tens) {
					span.value += tens
					span.start--
				}
			}
		}
		return span, true
	}
	return countSpan{}, false
}

// numberWord looks a single token up in the number-word table.
func (e *Extractor) numberWord(token string) (int, bool) {
	for _, nw := range e.vocab.Numbers.Words {
		if strings.EqualFold(nw.Word, token) {
			return nw.Value, true
		}
	}
	return 0, false
}

func indexTokens(tokens, words []string) int {
	if len(words) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(words) <= len(tokens); i++ {
		for j, w := range words {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return i
	}
	return -1
}

func isUnit(v int) bool { return v >= 1 && v <= 9 }

func isTens(v int) bool { return v >= 20 && v <= 90 && v%10 == 0 }
