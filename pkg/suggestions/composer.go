package suggestions

import (
	"context"
	"sort"
	"time"

	"github.com/wtthornton/homeiq-insight/pkg/llm"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// Rank implements the ranking pipeline steps 2-5 over an
// already-scored candidate list (step 1, scoring, happens at
// construction time via the NewXCandidate helpers). It mutates neither
// its input slice nor the candidates themselves; it returns the final,
// capped, ordered survivor list.
func Rank(candidates []Candidate, prefs storage.Preferences) []Candidate {
	floor := prefs.CreativityLevel.ConfidenceFloor()
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= floor {
			filtered = append(filtered, c)
		}
	}

	multiplier := prefs.BlueprintPreference.Multiplier()
	reranked := make([]Candidate, len(filtered))
	for i, c := range filtered {
		reranked[i] = c
		if c.IsTemplateMatch {
			reranked[i].Score = c.Score * multiplier
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })

	deduped := deduplicate(reranked)

	max := prefs.MaxSuggestions
	if max > 0 && len(deduped) > max {
		deduped = deduped[:max]
	}
	return deduped
}

// deduplicate drops redundant candidates: a candidate is dropped when
// its devices_involved is a subset of an already-selected, higher-or-
// equal-scored candidate's devices. Input must already be sorted by
// score desc so "already-selected" always outranks the candidate under
// test.
func deduplicate(sorted []Candidate) []Candidate {
	kept := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		redundant := false
		for _, k := range kept {
			if c.isSubsetOf(k) {
				redundant = true
				break
			}
		}
		if !redundant {
			kept = append(kept, c)
		}
	}
	return kept
}

// Describer generates the natural-language description for a surviving
// candidate, with a deterministic fallback when the LLM adapter fails
//.
type Describer struct {
	provider  llm.Provider
	sanitizer *Sanitizer
}

// NewDescriber builds a Describer. provider may be nil to force the
// template fallback for every candidate (e.g. no LLM configured).
func NewDescriber(provider llm.Provider) *Describer {
	return &Describer{provider: provider, sanitizer: NewSanitizer()}
}

// Describe produces a (description, source) pair for c, where source is
// "llm" or "template"'s description_source flag.
func (d *Describer) Describe(ctx context.Context, c Candidate) (string, string) {
	brief := llm.Brief{
		Kind:     c.Kind,
		Anchor:   c.AnchorEntityID,
		Metadata: c.Metadata,
		Devices:  c.DevicesInvolved,
		Context:  map[string]interface{}{},
	}
	brief = d.sanitizeBrief(brief)

	if d.provider == nil {
		return llm.TemplateDescribe(brief), "template"
	}
	desc, err := d.provider.Describe(ctx, brief)
	if err != nil {
		return llm.TemplateDescribe(brief), "template"
	}
	sanitized, err := d.sanitizer.SanitizeWithFallback(desc)
	if err != nil {
		sanitized = d.sanitizer.SafeFallback(desc)
	}
	return sanitized, "llm"
}

func (d *Describer) sanitizeBrief(b llm.Brief) llm.Brief {
	b.Anchor = d.sanitizeString(b.Anchor)
	b.Metadata = d.sanitizeMap(b.Metadata)
	b.Context = d.sanitizeMap(b.Context)
	return b
}

func (d *Describer) sanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = d.sanitizeString(s)
			continue
		}
		out[k] = v
	}
	return out
}

func (d *Describer) sanitizeString(s string) string {
	out, err := d.sanitizer.SanitizeWithFallback(s)
	if err != nil {
		return d.sanitizer.SafeFallback(s)
	}
	return out
}

// ComposeAndPersist runs Rank over candidates, describes each survivor,
// and inserts a draft Suggestion row's "stores drafts".
// It returns the inserted suggestion ids in rank order.
func ComposeAndPersist(ctx context.Context, store *storage.Store, describer *Describer, candidates []Candidate, prefs storage.Preferences, userID string, now time.Time) ([]string, error) {
	survivors := Rank(candidates, prefs)
	ids := make([]string, 0, len(survivors))
	for _, c := range survivors {
		description, source := describer.Describe(ctx, c)
		sug := storage.Suggestion{
			Status:            storage.SuggestionDraft,
			Source:            c.Source,
			Description:       description,
			DescriptionSource: source,
			DevicesInvolved:   c.DevicesInvolved,
			Confidence:        c.Confidence,
			Score:             c.Score,
			UserID:            userID,
		}
		id, err := store.InsertSuggestion(sug, now)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
