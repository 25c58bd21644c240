// Package entities implements the Entity Resolver:
// fuses five signals into a ranked (entity_id, score) list per free-form
// query token, accepting, rejecting, or flagging each span ambiguous.
package entities

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wtthornton/homeiq-insight/pkg/nlp"
	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
)

// Weights holds the five fusion signal weights.
type Weights struct {
	SemanticEmbedding float64
	ExactMatch        float64
	FuzzyMatch        float64
	NumberedDevice    float64
	AreaPrior         float64
}

// DefaultWeights matches the stated weights (0.35/0.30/0.15/0.15/0.05).
func DefaultWeights() Weights {
	return Weights{
		SemanticEmbedding: 0.35,
		ExactMatch:        0.30,
		FuzzyMatch:        0.15,
		NumberedDevice:    0.15,
		AreaPrior:         0.05,
	}
}

// sum totals the weights, used to rescale the fused score into [0,1].
func (w Weights) sum() float64 {
	return w.SemanticEmbedding + w.ExactMatch + w.FuzzyMatch + w.NumberedDevice + w.AreaPrior
}

// AcceptFloor and AmbiguityMargin implement the acceptance rule:
// "score >= 0.80 AND the second-best score trails by >= 0.10".
const (
	AcceptFloor     = 0.80
	AmbiguityMargin = 0.10
)

// CandidateRelativeFloor and MaxCandidates bound what an ambiguous
// resolution surfaces: a candidate must score within this fraction of
// the best match to be worth asking about, and a clarifying question
// never enumerates more than MaxCandidates options. Without the floor,
// a query like "the light" would list every motion sensor in the house
// alongside the lights.
const (
	CandidateRelativeFloor = 0.60
	MaxCandidates          = 8
)

// RegistryEntity is one entity_id known to the resolver, with the
// attributes the fusion signals need.
type RegistryEntity struct {
	EntityID     string
	FriendlyName string
	Domain       string
	AreaID       string
	Embedding    []float64
}

// Match is one scored candidate for a query span.
type Match struct {
	EntityID string
	Score    float64
}

// Resolution is the outcome for one span: either Accepted (a single
// entity cleared both thresholds) or ambiguous (every candidate above a
// noise floor is returned for the ask-AI pipeline to ask about).
type Resolution struct {
	Span       string
	Accepted   bool
	Entity     string
	Score      float64
	Candidates []Match // present when ambiguous
}

// Resolver fuses the five signals and pre-empts them with an
// AliasMap lookup.
type Resolver struct {
	weights  Weights
	embedder nlp.EmbeddingAdapter
	aliases  AliasLookup
}

// AliasLookup is the narrow slice of storage.Store the resolver needs,
// kept as an interface so tests can swap in a fake.
type AliasLookup interface {
	ResolveAlias(userID, alias string) (string, bool, error)
}

// New builds a Resolver. embedder may be nil to disable the semantic
// signal; the resolver stays usable without it.
func New(weights Weights, embedder nlp.EmbeddingAdapter, aliases AliasLookup) *Resolver {
	return &Resolver{weights: weights, embedder: embedder, aliases: aliases}
}

// numberedSuffix extracts a trailing integer from a query span, e.g.
// "bedroom light 1" -> 1, used for the numbered-device signal.
var numberedSuffix = regexp.MustCompile(`(\d+)\s*$`)

// Resolve fuses the five signals for span against registry, using
// areaHint as the query-context area prior. Determinism follows from
// this function being a pure fold over its inputs with a single stable
// tie-break (sort by score desc, then entity id asc).
func (r *Resolver) Resolve(ctx context.Context, userID, span string, registry []RegistryEntity, areaHint string) (Resolution, error) {
	normalizedSpan := normalize(span)

	if r.aliases != nil {
		if target, ok, err := r.aliases.ResolveAlias(userID, normalizedSpan); err == nil && ok {
			return Resolution{Span: span, Accepted: true, Entity: target, Score: 1.0}, nil
		}
	}

	var spanVec []float64
	if r.embedder != nil {
		v, err := r.embedder.Embed(ctx, span)
		if err == nil {
			spanVec = v
		}
	}

	matches := make([]Match, 0, len(registry))
	for _, e := range registry {
		score := r.fuse(normalizedSpan, spanVec, e, areaHint)
		matches = append(matches, Match{EntityID: e.EntityID, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].EntityID < matches[j].EntityID
	})

	if len(matches) == 0 {
		return Resolution{Span: span, Accepted: false}, nil
	}

	best := matches[0]
	secondBest := 0.0
	if len(matches) > 1 {
		secondBest = matches[1].Score
	}
	if best.Score >= AcceptFloor && best.Score-secondBest >= AmbiguityMargin {
		return Resolution{Span: span, Accepted: true, Entity: best.EntityID, Score: best.Score}, nil
	}
	return Resolution{Span: span, Accepted: false, Candidates: topCandidates(matches)}, nil
}

// topCandidates trims a score-sorted match list to the options worth
// clarifying over: zero-score entities carry no signal at all, anything
// far below the best match is noise relative to it, and the list is
// capped at MaxCandidates. May return nil when even the best match
// scored zero; the caller treats that as nothing to ask about.
func topCandidates(matches []Match) []Match {
	if len(matches) == 0 || matches[0].Score <= 0 {
		return nil
	}
	floor := matches[0].Score * CandidateRelativeFloor
	out := make([]Match, 0, MaxCandidates)
	for _, m := range matches {
		if m.Score < floor {
			break
		}
		out = append(out, m)
		if len(out) == MaxCandidates {
			break
		}
	}
	return out
}

// fuse combines the five signals with the configured weights, rescaled
// to [0,1].
func (r *Resolver) fuse(normalizedSpan string, spanVec []float64, e RegistryEntity, areaHint string) float64 {
	w := r.weights
	var semantic float64
	if spanVec != nil && len(e.Embedding) == len(spanVec) {
		semantic = (mathutil.CosineSimilarity(spanVec, e.Embedding) + 1) / 2
	}
	exact := exactMatchScore(normalizedSpan, e)
	fuzzy := fuzzyMatchScore(normalizedSpan, normalize(e.FriendlyName))
	numbered := numberedDeviceScore(normalizedSpan, e.EntityID)
	area := areaPriorScore(areaHint, e.AreaID)

	sum := w.SemanticEmbedding*semantic + w.ExactMatch*exact + w.FuzzyMatch*fuzzy + w.NumberedDevice*numbered + w.AreaPrior*area
	denom := w.sum()
	if denom == 0 {
		return 0
	}
	return clamp01(sum / denom)
}

func exactMatchScore(normalizedSpan string, e RegistryEntity) float64 {
	if normalizedSpan == normalize(e.FriendlyName) || normalizedSpan == normalize(e.EntityID) {
		return 1.0
	}
	return 0.0
}

// fuzzyMatchScore returns a normalized Levenshtein similarity in [0,1].
func fuzzyMatchScore(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return clamp01(1 - float64(dist)/float64(maxLen))
}

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[m]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// numberedDeviceScore implements the "numbered-device parsing":
// a span like "bedroom light 1" matches the numbered suffix of an
// entity_id like "light.bedroom_1".
func numberedDeviceScore(normalizedSpan, entityID string) float64 {
	m := numberedSuffix.FindStringSubmatch(normalizedSpan)
	if m == nil {
		return 0
	}
	for _, suffix := range []string{"_" + m[1], "." + m[1]} {
		if strings.HasSuffix(entityID, suffix) {
			return 1.0
		}
	}
	return 0
}

// areaPriorScore rewards an entity whose area matches the query's area
// hint.
func areaPriorScore(areaHint, entityArea string) float64 {
	if areaHint == "" || entityArea == "" {
		return 0
	}
	if normalize(areaHint) == normalize(entityArea) {
		return 1.0
	}
	return 0
}

var lowerCaser = cases.Lower(language.English)

// normalize lower-cases and collapses whitespace so "Kitchen  Light"
// and "kitchen light" fuse against the same candidates.
func normalize(s string) string {
	s = lowerCaser.String(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
