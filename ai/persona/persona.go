// Package persona synthesizes panel actors from fixed name and trait pools.
// It is the template backend of the wizard service: no network, and the
// output for a given batch request is always the same.
package persona

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/intent"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Generator implements ai.ActorGenerator from the built-in pools.
type Generator struct {
	lang language.Tag
}

// New creates a template persona generator.
func New() *Generator {
	return &Generator{lang: language.English}
}

// GenerateActors returns req.BatchSize personas. Actor i of batch b is
// derived from its panel position b*ai.BatchSize+i, so the same request
// always yields the same actors and different batches do not collide.
func (g *Generator) GenerateActors(ctx context.Context, req ai.BatchRequest) ([]graph.GeneratedActor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.BatchSize <= 0 {
		return nil, nil
	}

	// Casers are stateful; one per call.
	noun := cases.Title(g.lang).String(req.AgentNoun)
	seed := panelSeed(req)
	ages := agesFor(req.AgentNoun, req.DemographicMix)
	actors := make([]graph.GeneratedActor, 0, req.BatchSize)
	for i := range req.BatchSize {
		pos := req.BatchNumber*ai.BatchSize + i
		rng := rand.New(rand.NewPCG(seed, uint64(pos)))
		actors = append(actors, actor(req, noun, pos, rng, ages))
	}
	return actors, nil
}

func actor(req ai.BatchRequest, noun string, pos int, rng *rand.Rand, ages ageRange) graph.GeneratedActor {
	age := ages.min + rng.IntN(ages.max-ages.min+1)
	personality := pick(rng, personalities)

	p := graph.Persona{
		CulturalBackground: pick(rng, backgrounds),
		AgeGroup:           AgeGroup(age),
		Age:                age,
		Personality:        personality,
		Traits:             pickN(rng, traits, 3),
	}

	switch req.NamingStyle {
	case intent.NamingProfessional:
		p.DisplayName = pick(rng, firstNames) + " " + pick(rng, lastNames)
		p.Title = pick(rng, seniorities) + " " + noun
		p.Specialization = pick(rng, specialties)
	case intent.NamingFantasy:
		p.DisplayName = pick(rng, fantasyNames) + " the " + pick(rng, epithets)
	case intent.NamingNumbered:
		p.DisplayName = fmt.Sprintf("%s %d", noun, pos+1)
	default:
		p.DisplayName = pick(rng, firstNames) + " " + pick(rng, lastNames)
	}
	p.Name = fmt.Sprintf("%s-%d", slug(p.DisplayName), pos+1)

	return graph.GeneratedActor{
		Type:     graph.DefaultActorType,
		Label:    p.DisplayName,
		Persona:  p,
		Behavior: behavior(req, p),
	}
}

// AgeGroup buckets an age.
func AgeGroup(age int) string {
	switch {
	case age < 20:
		return "teen"
	case age < 30:
		return "young-adult"
	case age < 45:
		return "adult"
	case age < 65:
		return "middle-aged"
	default:
		return "senior"
	}
}

func behavior(req ai.BatchRequest, p graph.Persona) string {
	task := req.TaskContext
	if task == "" {
		task = req.TaskVerb
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %d-year-old %s %s of %s background.",
		p.DisplayName, p.Age, p.Personality, req.AgentNoun, p.CulturalBackground)
	if p.Title != "" {
		fmt.Fprintf(&b, " You work as a %s focused on %s.", p.Title, p.Specialization)
	}
	fmt.Fprintf(&b, " Your task: %s. Answer in your own voice; you are %s.",
		task, strings.Join(p.Traits, ", "))
	return b.String()
}

func agesFor(noun string, demographics []string) ageRange {
	if slices.Contains(demographics, "age") {
		return wideAges
	}
	fields := strings.Fields(noun)
	if len(fields) > 0 {
		if r, ok := nounAges[fields[len(fields)-1]]; ok {
			return r
		}
	}
	return defaultAges
}

func panelSeed(req ai.BatchRequest) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s", req.AgentNoun, req.NamingStyle, req.TaskType, req.TaskContext)
	return h.Sum64()
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.IntN(len(pool))]
}

func pickN(rng *rand.Rand, pool []string, n int) []string {
	idx := rng.Perm(len(pool))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

var _ ai.ActorGenerator = (*Generator)(nil)
