package intent

import (
	"strings"
)

const (
	// maxNounTokens bounds multi-word subjects ("high school student").
	maxNounTokens = 3
	// Stem length thresholds for stripping a plural "s". The pattern path
	// has seen a verb continuation and trusts the token more than the
	// single-token fallback does.
	patternStemMin  = 2
	fallbackStemMin = 3
)

// nounAfter extracts the subject noun that follows a count expression.
// It returns the singular and plural forms.
func (e *Extractor) nounAfter(tokens []string, span countSpan) (string, string) {
	def := strings.ToLower(e.vocab.Nouns.Default)
	if !span.found {
		return def, Pluralize(def)
	}

	i := span.end
	// "a couple of chefs", "hundreds of fans"
	for i < len(tokens) && tokens[i] == "of" {
		i++
	}
	if i >= len(tokens) || !isAlpha(tokens[i]) {
		return def, Pluralize(def)
	}

	var phrase []string
	continued := false
	for j := i; j < len(tokens); j++ {
		if len(phrase) > 0 && e.isContinuation(tokens, j) {
			continued = true
			break
		}
		if !isAlpha(tokens[j]) || len(phrase) == maxNounTokens {
			break
		}
		phrase = append(phrase, tokens[j])
	}

	if !continued {
		noun := Singularize(tokens[i], fallbackStemMin)
		return noun, Pluralize(noun)
	}

	last := len(phrase) - 1
	phrase[last] = Singularize(phrase[last], patternStemMin)
	noun := strings.Join(phrase, " ")
	return noun, Pluralize(noun)
}

// isContinuation reports whether tokens[j] starts the verb part of the
// request: a gerund, a stop word, or a verb directly followed by an article.
func (e *Extractor) isContinuation(tokens []string, j int) bool {
	tok := tokens[j]
	if len(tok) > 4 && strings.HasSuffix(tok, "ing") {
		return true
	}
	if e.vocab.stopWords[tok] || e.vocab.articles[tok] {
		return true
	}
	if j+1 < len(tokens) && e.vocab.articles[tokens[j+1]] {
		return true
	}
	return false
}

// Singularize strips one trailing "s" when the remaining stem is longer than
// minStem runes. Short words ("bus", "gas") are left alone.
func Singularize(word string, minStem int) string {
	if !strings.HasSuffix(word, "s") {
		return word
	}
	stem := strings.TrimSuffix(word, "s")
	if len([]rune(stem)) > minStem {
		return stem
	}
	return word
}

// Pluralize appends "s" unless the word already ends with one.
func Pluralize(word string) string {
	if strings.HasSuffix(word, "s") {
		return word
	}
	return word + "s"
}

// ClassifyNamingStyle tests the noun against the ordered naming-style
// vocabularies; the first vocabulary containing a matching term wins.
func (e *Extractor) ClassifyNamingStyle(noun string) NamingStyle {
	hits := e.vocab.NamingStyles.find(" " + strings.ToLower(noun) + " ")
	if len(hits) == 0 {
		return NamingStyle(e.vocab.NamingStyles.Default)
	}
	return NamingStyle(hits[0].category)
}
