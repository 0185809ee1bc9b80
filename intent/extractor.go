package intent

import (
	"strings"
	"sync"
)

// Extractor turns free text into a ParsedIntent using an injected
// Vocabulary. It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	vocab *Vocabulary
}

// New creates an Extractor for the given vocabulary. A nil vocabulary
// selects the built-in one.
func New(vocab *Vocabulary) *Extractor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Extractor{vocab: vocab}
}

var (
	defaultOnce      sync.Once
	defaultExtractor *Extractor
)

// Default returns a shared Extractor over the built-in vocabulary.
func Default() *Extractor {
	defaultOnce.Do(func() {
		defaultExtractor = New(nil)
	})
	return defaultExtractor
}

// Vocabulary returns the vocabulary the extractor was built with.
func (e *Extractor) Vocabulary() *Vocabulary { return e.vocab }

// Extract interprets text. It never fails: every sub-extractor falls back
// to a vocabulary default.
func (e *Extractor) Extract(text string) ParsedIntent {
	norm := normalize(text)
	tokens := tokenize(norm)

	span := e.findCount(tokens)
	noun, plural := e.nounAfter(tokens, span)
	taskType, verb, description := e.detectTask(norm)
	output, aggregation := e.DetermineOutputTypes(taskType)

	wt := WorkflowGeneral
	if span.found {
		wt = WorkflowPersonaPanel
	}

	return ParsedIntent{
		WorkflowType:    wt,
		AgentCount:      span.value,
		AgentNoun:       noun,
		AgentNounPlural: plural,
		NamingStyle:     e.ClassifyNamingStyle(noun),
		TaskDescription: description,
		TaskVerb:        verb,
		TaskType:        taskType,
		InputType:       e.detectInputType(norm),
		OutputType:      output,
		AggregationType: aggregation,
		DemographicMix:  e.detectDemographics(norm),
	}
}

// ExtractCount returns the number of actors requested, or the vocabulary
// default (10) when the text names no count.
func (e *Extractor) ExtractCount(text string) int {
	return e.findCount(tokenize(normalize(text))).value
}

// HasCount reports whether the text contains an explicit count expression.
func (e *Extractor) HasCount(text string) bool {
	return e.findCount(tokenize(normalize(text))).found
}

// ExtractAgentNoun returns the singular and plural subject noun.
func (e *Extractor) ExtractAgentNoun(text string) (string, string) {
	tokens := tokenize(normalize(text))
	return e.nounAfter(tokens, e.findCount(tokens))
}

// DetectTask returns the first task category whose verb appears in the text
// and the matched verb.
func (e *Extractor) DetectTask(text string) (TaskType, string) {
	tt, verb, _ := e.detectTask(normalize(text))
	return tt, verb
}

func (e *Extractor) detectTask(norm string) (TaskType, string, string) {
	hits := e.vocab.Tasks.find(norm)
	if len(hits) == 0 {
		return TaskType(e.vocab.Tasks.Default), e.vocab.Tasks.DefaultVerb, strings.TrimSpace(norm)
	}
	h := hits[0]
	verb := wordAt(norm, h.start)
	start := h.start
	for start < len(norm) && norm[start] == ' ' {
		start++
	}
	return TaskType(h.category), verb, strings.TrimSpace(norm[start:])
}

// DetectInputType returns the first input category whose keyword appears in
// the text.
func (e *Extractor) DetectInputType(text string) InputType {
	return e.detectInputType(normalize(text))
}

func (e *Extractor) detectInputType(norm string) InputType {
	hits := e.vocab.Inputs.find(norm)
	if len(hits) == 0 {
		return InputType(e.vocab.Inputs.Default)
	}
	return InputType(hits[0].category)
}

// DetectDemographics returns every demographic category mentioned in the
// text, in table order, or nil when none is.
func (e *Extractor) DetectDemographics(text string) []string {
	return e.detectDemographics(normalize(text))
}

func (e *Extractor) detectDemographics(norm string) []string {
	hits := e.vocab.Demographics.find(norm)
	if len(hits) == 0 {
		return nil
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.category)
	}
	return out
}

// DetermineOutputTypes looks up the output and aggregation strategy for a
// task type. Unknown task types use the custom row.
func (e *Extractor) DetermineOutputTypes(tt TaskType) (OutputType, AggregationType) {
	rule, ok := e.vocab.Outputs[tt]
	if !ok {
		rule = e.vocab.Outputs[TaskCustom]
	}
	return rule.Output, rule.Aggregation
}

// ExtractIntent interprets text with the built-in vocabulary.
func ExtractIntent(text string) ParsedIntent { return Default().Extract(text) }

// ExtractCount extracts the actor count with the built-in vocabulary.
func ExtractCount(text string) int { return Default().ExtractCount(text) }

// ExtractAgentNoun extracts the subject noun with the built-in vocabulary.
func ExtractAgentNoun(text string) (string, string) { return Default().ExtractAgentNoun(text) }

// DetermineOutputTypes maps a task type with the built-in vocabulary.
func DetermineOutputTypes(tt TaskType) (OutputType, AggregationType) {
	return Default().DetermineOutputTypes(tt)
}
