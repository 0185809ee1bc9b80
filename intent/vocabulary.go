package intent

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// VocabularyVersion is the only vocabulary document version understood by
// this package.
const VocabularyVersion = 1

// MaxAgentCount is the hard ceiling on the number of actors a request may
// ask for. A vocabulary may lower it with numbers.max.
const MaxAgentCount = 10000

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// MatchPolicy selects between first-match and all-match evaluation of an
// ordered rule set.
type MatchPolicy string

const (
	MatchFirst MatchPolicy = "first"
	MatchAll   MatchPolicy = "all"
)

// MatchMode selects how a matcher is compared against normalized text.
type MatchMode string

const (
	// ModeSubstring matches when the matcher appears anywhere in the text.
	ModeSubstring MatchMode = "substring"
	// ModeWord matches only whole words (regexp \b boundaries).
	ModeWord MatchMode = "word"
)

// Policy is the matching contract of a rule set.
type Policy struct {
	Match MatchPolicy `yaml:"match" json:"match"`
	Mode  MatchMode   `yaml:"mode" json:"mode"`
}

// Table is one category of an ordered rule set.
type Table struct {
	Category string   `yaml:"category" json:"category"`
	Matchers []string `yaml:"matchers" json:"matchers"`
}

// RuleSet is an ordered list of categories evaluated under a Policy.
type RuleSet struct {
	Policy      Policy  `yaml:"policy" json:"policy"`
	Default     string  `yaml:"default,omitempty" json:"default,omitempty"`
	DefaultVerb string  `yaml:"defaultVerb,omitempty" json:"defaultVerb,omitempty"`
	Tables      []Table `yaml:"tables" json:"tables"`

	compiled [][]*regexp.Regexp
}

// NumberWord maps a (possibly multi-word) number expression to its value.
type NumberWord struct {
	Word  string `yaml:"word" json:"word"`
	Value int    `yaml:"value" json:"value"`
}

// Numbers configures count extraction. Extracted counts above Max are
// clamped to Max; zero means MaxAgentCount.
type Numbers struct {
	Default int          `yaml:"default" json:"default"`
	Max     int          `yaml:"max,omitempty" json:"max,omitempty"`
	Scales  []NumberWord `yaml:"scales" json:"scales"`
	Words   []NumberWord `yaml:"words" json:"words"`
}

// Limit returns the effective count ceiling.
func (n Numbers) Limit() int {
	if n.Max == 0 {
		return MaxAgentCount
	}
	return n.Max
}

// Nouns configures subject-noun extraction.
type Nouns struct {
	Default   string   `yaml:"default" json:"default"`
	Articles  []string `yaml:"articles" json:"articles"`
	StopWords []string `yaml:"stopWords" json:"stopWords"`
}

// OutputRule is one row of the task-type -> output/aggregation table.
type OutputRule struct {
	Output      OutputType      `yaml:"output" json:"output"`
	Aggregation AggregationType `yaml:"aggregation" json:"aggregation"`
}

// Vocabulary holds every closed word list and mapping table used by the
// extractor. It is immutable once returned by ParseVocabulary.
type Vocabulary struct {
	Version      int                     `yaml:"version" json:"version"`
	Numbers      Numbers                 `yaml:"numbers" json:"numbers"`
	Nouns        Nouns                   `yaml:"nouns" json:"nouns"`
	NamingStyles RuleSet                 `yaml:"namingStyles" json:"namingStyles"`
	Tasks        RuleSet                 `yaml:"tasks" json:"tasks"`
	Inputs       RuleSet                 `yaml:"inputs" json:"inputs"`
	Demographics RuleSet                 `yaml:"demographics" json:"demographics"`
	Outputs      map[TaskType]OutputRule `yaml:"outputs" json:"outputs"`

	scales    map[string]int
	stopWords map[string]bool
	articles  map[string]bool
}

// DefaultVocabulary returns the built-in vocabulary. It panics only if the
// embedded document is broken, which the package tests rule out.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabularyYAML)
	if err != nil {
		panic(fmt.Sprintf("intent: embedded vocabulary: %v", err))
	}
	return v
}

// DefaultVocabularyYAML returns a copy of the embedded vocabulary document,
// useful as a starting point for custom vocabularies.
func DefaultVocabularyYAML() []byte {
	out := make([]byte, len(defaultVocabularyYAML))
	copy(out, defaultVocabularyYAML)
	return out
}

// LoadVocabulary reads and validates a vocabulary document from disk.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: read %s: %w", path, err)
	}
	v, err := ParseVocabulary(data)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: %s: %w", path, err)
	}
	return v, nil
}

// ParseVocabulary decodes, validates and compiles a vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := v.compile(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Validate checks the document for the invariants the extractor relies on.
func (v *Vocabulary) Validate() error {
	if v.Version != VocabularyVersion {
		return fmt.Errorf("unsupported vocabulary version %d (want %d)", v.Version, VocabularyVersion)
	}
	if v.Numbers.Default <= 0 {
		return fmt.Errorf("numbers.default must be positive, got %d", v.Numbers.Default)
	}
	if v.Numbers.Max < 0 || v.Numbers.Max > MaxAgentCount {
		return fmt.Errorf("numbers.max must be between 1 and %d, got %d", MaxAgentCount, v.Numbers.Max)
	}
	if v.Numbers.Default > v.Numbers.Limit() {
		return fmt.Errorf("numbers.default %d exceeds numbers.max %d", v.Numbers.Default, v.Numbers.Limit())
	}
	if len(v.Numbers.Words) == 0 || len(v.Numbers.Scales) == 0 {
		return fmt.Errorf("numbers.words and numbers.scales must not be empty")
	}
	if strings.TrimSpace(v.Nouns.Default) == "" {
		return fmt.Errorf("nouns.default must not be empty")
	}

	if err := v.NamingStyles.validate("namingStyles", func(c string) bool {
		return validNamingStyle(NamingStyle(c))
	}); err != nil {
		return err
	}
	if err := v.Tasks.validate("tasks", func(c string) bool {
		return validTaskType(TaskType(c))
	}); err != nil {
		return err
	}
	if v.Tasks.DefaultVerb == "" {
		return fmt.Errorf("tasks.defaultVerb must not be empty")
	}
	if err := v.Inputs.validate("inputs", func(c string) bool {
		return validInputType(InputType(c))
	}); err != nil {
		return err
	}
	if err := v.Demographics.validate("demographics", func(string) bool { return true }); err != nil {
		return err
	}

	// The output table is the single source of truth for output and
	// aggregation types; it has to cover every task type.
	for _, tt := range AllTaskTypes() {
		rule, ok := v.Outputs[tt]
		if !ok {
			return fmt.Errorf("outputs: missing entry for task type %q", tt)
		}
		if rule.Output == "" || rule.Aggregation == "" {
			return fmt.Errorf("outputs: incomplete entry for task type %q", tt)
		}
	}
	for tt := range v.Outputs {
		if !validTaskType(tt) {
			return fmt.Errorf("outputs: unknown task type %q", tt)
		}
	}
	return nil
}

func (r *RuleSet) validate(name string, validCategory func(string) bool) error {
	switch r.Policy.Match {
	case MatchFirst, MatchAll:
	default:
		return fmt.Errorf("%s: unknown match policy %q", name, r.Policy.Match)
	}
	switch r.Policy.Mode {
	case ModeSubstring, ModeWord:
	default:
		return fmt.Errorf("%s: unknown match mode %q", name, r.Policy.Mode)
	}
	if len(r.Tables) == 0 {
		return fmt.Errorf("%s: no tables", name)
	}
	if r.Policy.Match == MatchFirst && r.Default == "" {
		return fmt.Errorf("%s: first-match rule sets need a default", name)
	}
	if r.Default != "" && !validCategory(r.Default) {
		return fmt.Errorf("%s: invalid default category %q", name, r.Default)
	}
	for i, t := range r.Tables {
		if t.Category == "" {
			return fmt.Errorf("%s: table %d has no category", name, i)
		}
		if !validCategory(t.Category) {
			return fmt.Errorf("%s: invalid category %q", name, t.Category)
		}
		if len(t.Matchers) == 0 {
			return fmt.Errorf("%s: category %q has no matchers", name, t.Category)
		}
	}
	return nil
}

func (v *Vocabulary) compile() error {
	v.scales = make(map[string]int, len(v.Numbers.Scales))
	for _, s := range v.Numbers.Scales {
		v.scales[strings.ToLower(s.Word)] = s.Value
	}
	v.stopWords = toSet(v.Nouns.StopWords)
	v.articles = toSet(v.Nouns.Articles)

	for _, rs := range []*RuleSet{&v.NamingStyles, &v.Tasks, &v.Inputs, &v.Demographics} {
		if err := rs.compile(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RuleSet) compile() error {
	if r.Policy.Mode != ModeWord {
		return nil
	}
	r.compiled = make([][]*regexp.Regexp, len(r.Tables))
	for i, t := range r.Tables {
		for _, m := range t.Matchers {
			re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.TrimSpace(strings.ToLower(m))) + `\b`)
			if err != nil {
				return fmt.Errorf("compile matcher %q: %w", m, err)
			}
			r.compiled[i] = append(r.compiled[i], re)
		}
	}
	return nil
}

// match is one hit of a rule set against normalized text.
type match struct {
	category string
	start    int
	end      int
}

// find evaluates the rule set against text. For first-match policies at most
// one hit is returned; table order decides ties.
func (r *RuleSet) find(text string) []match {
	var hits []match
	for i, t := range r.Tables {
		for j, m := range t.Matchers {
			start, end := -1, -1
			if r.compiled != nil {
				if loc := r.compiled[i][j].FindStringIndex(text); loc != nil {
					start, end = loc[0], loc[1]
				}
			} else {
				needle := strings.ToLower(m)
				if idx := strings.Index(text, needle); idx >= 0 {
					start, end = idx, idx+len(needle)
				}
			}
			if start < 0 {
				continue
			}
			hits = append(hits, match{category: t.Category, start: start, end: end})
			if r.Policy.Match == MatchFirst {
				return hits
			}
			break
		}
	}
	return hits
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}
