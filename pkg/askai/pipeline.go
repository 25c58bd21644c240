// Package askai implements the ask-AI query pipeline: a per-session
// state machine that turns a free-form user query into a drafted
// Suggestion, resolving entities, consulting the retrieval cache to
// skip clarification when possible, and bounding the number of
// clarifying round-trips per session.
package askai

import (
	"context"
	"strings"
	"time"

	"k8s.io/utils/ptr"

	"github.com/wtthornton/homeiq-insight/pkg/entities"
	"github.com/wtthornton/homeiq-insight/pkg/nlp"
	"github.com/wtthornton/homeiq-insight/pkg/retrieval"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
	"github.com/wtthornton/homeiq-insight/pkg/suggestions"
)

// Abort reason codes persisted to storage.AskAISession.AbortReason.
const (
	AbortClarificationLimitExceeded = "clarification_limit_exceeded"
	AbortNoEntitiesResolved         = "no_entities_resolved"
	AbortHardError                  = "hard_error"
)

// RegistryLookup supplies the current entity registry for a user, the
// candidate pool the entity resolver fuses against.
type RegistryLookup interface {
	EntityRegistry(ctx context.Context, userID string) ([]entities.RegistryEntity, error)
}

// Pipeline wires the entity resolver, the retrieval cache, and the
// suggestion describer behind a per-session state machine.
type Pipeline struct {
	store     *storage.Store
	ner       nlp.NERAdapter
	resolver  *entities.Resolver
	cache     *retrieval.Cache
	describer *suggestions.Describer
	registry  RegistryLookup
}

// New builds a Pipeline from its collaborators.
func New(store *storage.Store, ner nlp.NERAdapter, resolver *entities.Resolver, cache *retrieval.Cache, describer *suggestions.Describer, registry RegistryLookup) *Pipeline {
	return &Pipeline{store: store, ner: ner, resolver: resolver, cache: cache, describer: describer, registry: registry}
}

// abbreviations expands common shorthand during RECEIVED->NORMALIZED
//.
var abbreviations = map[string]string{
	"temp":  "temperature",
	"ac":    "air conditioner",
	"fridge": "refrigerator",
	"tv":    "television",
}

func normalizeQuery(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	words := strings.Fields(lowered)
	for i, w := range words {
		if expanded, ok := abbreviations[w]; ok {
			words[i] = expanded
		}
	}
	return strings.Join(words, " ")
}

// Result is what the caller (an HTTP handler, a CLI) sees after a
// pipeline step: either a clarifying question set, a drafted
// suggestion, or an abort.
type Result struct {
	SessionID    string
	State        storage.AskAIState
	Ambiguities  []storage.Ambiguity
	SuggestionID *string
	AbortReason  string
}

// Start runs a brand-new query from RECEIVED through to either
// CLARIFYING, SUGGESTION_DRAFTED+RESPONDED, or ABORTED.
func (p *Pipeline) Start(ctx context.Context, userID, rawQuery string, now time.Time) (Result, error) {
	id, err := p.store.CreateAskAISession(userID, rawQuery, now)
	if err != nil {
		return Result{}, err
	}
	sess, err := p.store.GetAskAISession(id)
	if err != nil {
		return Result{}, err
	}
	return p.advance(ctx, sess, now)
}

// Clarify re-enters the pipeline at ENTITIES_EXTRACTED with the user's
// answer to a prior clarifying question.
func (p *Pipeline) Clarify(ctx context.Context, sessionID, answer string, now time.Time) (Result, error) {
	sess, err := p.store.GetAskAISession(sessionID)
	if err != nil {
		return Result{}, err
	}
	if sess.State == storage.AskAIAborted || sess.State == storage.AskAIResponded {
		return toResult(sess), nil
	}
	sess.NormalizedQuery = sess.NormalizedQuery + " " + normalizeQuery(answer)
	sess.State = storage.AskAIEntitiesExtracted
	return p.advance(ctx, sess, now)
}

// advance runs the state machine forward from sess's current state
// until it reaches a state that requires external input (CLARIFYING) or
// a terminal state (RESPONDED, ABORTED).
func (p *Pipeline) advance(ctx context.Context, sess storage.AskAISession, now time.Time) (Result, error) {
	for {
		switch sess.State {
		case storage.AskAIReceived:
			sess.NormalizedQuery = normalizeQuery(sess.RawQuery)
			sess.State = storage.AskAINormalized

		case storage.AskAINormalized:
			sess.State = storage.AskAIEntitiesExtracted

		case storage.AskAIEntitiesExtracted:
			resolved, ambiguities, err := p.extractAndResolve(ctx, sess)
			if err != nil {
				sess.State = storage.AskAIAborted
				sess.AbortReason = AbortHardError
				break
			}
			sess.Entities = resolved
			sess.Ambiguities = ambiguities
			if len(resolved) == 0 && len(ambiguities) == 0 {
				sess.State = storage.AskAIAborted
				sess.AbortReason = AbortNoEntitiesResolved
				break
			}
			sess.State = storage.AskAICacheChecked

		case storage.AskAICacheChecked:
			skip, err := p.shouldSkipClarification(ctx, sess)
			if err != nil {
				sess.State = storage.AskAIAborted
				sess.AbortReason = AbortHardError
				break
			}
			if skip || len(sess.Ambiguities) == 0 {
				sess.State = storage.AskAISuggestionDrafted
			} else {
				sess.State = storage.AskAIClarifying
			}

		case storage.AskAIClarifying:
			if sess.ClarificationCount >= storage.MaxClarifications {
				sess.State = storage.AskAIAborted
				sess.AbortReason = AbortClarificationLimitExceeded
				break
			}
			sess.ClarificationCount++
			if err := p.store.UpdateAskAISession(sess, now); err != nil {
				return Result{}, err
			}
			return toResult(sess), nil

		case storage.AskAISuggestionDrafted:
			id, err := p.draftSuggestion(ctx, sess, now)
			if err != nil {
				sess.State = storage.AskAIAborted
				sess.AbortReason = AbortHardError
				break
			}
			sess.SuggestionID = ptr.To(id)
			sess.State = storage.AskAIResponded

		case storage.AskAIResponded, storage.AskAIAborted:
			if err := p.store.UpdateAskAISession(sess, now); err != nil {
				return Result{}, err
			}
			_ = p.cache.Remember(ctx, sess.UserID, sess.NormalizedQuery, entityIDs(sess.Entities), sess.State == storage.AskAIResponded)
			return toResult(sess), nil

		default:
			sess.State = storage.AskAIAborted
			sess.AbortReason = AbortHardError
		}

		if err := p.store.UpdateAskAISession(sess, now); err != nil {
			return Result{}, err
		}
	}
}

// extractAndResolve runs the NER adapter, combines its spans with a
// plain keyword heuristic for device nouns the NER adapter misses, and sends each span
// to the entity resolver.
func (p *Pipeline) extractAndResolve(ctx context.Context, sess storage.AskAISession) ([]storage.ResolvedEntity, []storage.Ambiguity, error) {
	registry, err := p.registry.EntityRegistry(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}

	spans := []string{}
	if p.ner != nil {
		nerSpans, err := p.ner.ExtractEntities(ctx, sess.NormalizedQuery)
		if err == nil {
			for _, s := range nerSpans {
				if s.Type == nlp.SpanDevice || s.Type == nlp.SpanArea {
					spans = append(spans, s.Text)
				}
			}
		}
	}
	spans = append(spans, keywordHeuristicSpans(sess.NormalizedQuery, registry)...)
	spans = dedupeStrings(spans)

	var resolved []storage.ResolvedEntity
	var ambiguities []storage.Ambiguity
	for _, span := range spans {
		res, err := p.resolver.Resolve(ctx, sess.UserID, span, registry, "")
		if err != nil {
			continue
		}
		if res.Accepted {
			resolved = append(resolved, storage.ResolvedEntity{Span: span, EntityID: res.Entity, Score: res.Score})
			continue
		}
		if len(res.Candidates) > 0 {
			options := make([]string, len(res.Candidates))
			for i, m := range res.Candidates {
				options[i] = m.EntityID
			}
			ambiguities = append(ambiguities, storage.Ambiguity{Span: span, Options: options})
		}
	}
	return resolved, ambiguities, nil
}

// keywordHeuristicSpans matches friendly-name substrings directly
// against the normalized query, catching devices the NER adapter might
// miss.
func keywordHeuristicSpans(normalizedQuery string, registry []entities.RegistryEntity) []string {
	var out []string
	for _, e := range registry {
		name := strings.ToLower(e.FriendlyName)
		if name != "" && strings.Contains(normalizedQuery, name) {
			out = append(out, name)
		}
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// shouldSkipClarification implements the ENTITIES_EXTRACTED ->
// CACHE_CHECKED rule: query the retrieval cache with the normalized query; skip
// clarification when the best match clears the per-user threshold and
// its resolved entity set is a subset of (or equal to) the current one.
func (p *Pipeline) shouldSkipClarification(ctx context.Context, sess storage.AskAISession) (bool, error) {
	if len(sess.Ambiguities) == 0 {
		return true, nil
	}
	prefs, err := p.store.GetPreferences(sess.UserID)
	if err != nil {
		prefs = storage.DefaultPreferences(sess.UserID)
	}
	threshold := prefs.ClarificationSkipThreshold
	if threshold <= 0 {
		threshold = retrieval.SkipClarificationThreshold
	}

	hits, err := p.cache.Lookup(ctx, sess.UserID, sess.NormalizedQuery, 1)
	if err != nil {
		return false, err
	}
	if len(hits) == 0 || hits[0].Cosine < threshold {
		return false, nil
	}
	// "current entity set" spans both already-accepted resolutions and the
	// candidate pool behind any still-open ambiguity, so a cached query
	// whose kept resolution matches one of the open candidates can still
	// short-circuit the clarifying question.
	current := entityIDs(sess.Entities)
	for _, a := range sess.Ambiguities {
		current = append(current, a.Options...)
	}
	return isSubset(hits[0].ResolvedEntities, current), nil
}

func isSubset(a, b []string) bool {
	set := map[string]struct{}{}
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

func entityIDs(resolved []storage.ResolvedEntity) []string {
	out := make([]string, len(resolved))
	for i, r := range resolved {
		out[i] = r.EntityID
	}
	return out
}

// draftSuggestion hands the resolved brief to the composer and persists a draft Suggestion
// sourced from this Ask-AI session.
func (p *Pipeline) draftSuggestion(ctx context.Context, sess storage.AskAISession, now time.Time) (string, error) {
	devices := entityIDs(sess.Entities)
	candidate := suggestions.Candidate{
		Source:          storage.SourceAskAI,
		Kind:            "ask_ai",
		AnchorEntityID:  firstOrEmpty(devices),
		DevicesInvolved: devices,
		Confidence:      1.0,
		BaseScore:       1.0,
		Score:           1.0,
	}
	description, source := p.describer.Describe(ctx, candidate)
	sug := storage.Suggestion{
		Status:            storage.SuggestionDraft,
		Source:            storage.SourceAskAI,
		Description:       description,
		DescriptionSource: source,
		DevicesInvolved:   devices,
		Confidence:        candidate.Confidence,
		Score:             candidate.Score,
		UserID:            sess.UserID,
	}
	return p.store.InsertSuggestion(sug, now)
}

func firstOrEmpty(devices []string) string {
	if len(devices) == 0 {
		return ""
	}
	return devices[0]
}

func toResult(sess storage.AskAISession) Result {
	return Result{
		SessionID:    sess.ID,
		State:        sess.State,
		Ambiguities:  sess.Ambiguities,
		SuggestionID: sess.SuggestionID,
		AbortReason:  sess.AbortReason,
	}
}
