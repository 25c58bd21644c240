package suggestions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/llm"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

type fakeProvider struct {
	describeErr error
	describeOut string
}

func (f fakeProvider) Describe(_ context.Context, _ llm.Brief) (string, error) {
	if f.describeErr != nil {
		return "", f.describeErr
	}
	return f.describeOut, nil
}

func (f fakeProvider) Plan(_ context.Context, _ string, _ map[string]interface{}) (storage.StructuredPlan, error) {
	return storage.StructuredPlan{}, nil
}

func defaultPrefs() storage.Preferences {
	return storage.DefaultPreferences("u1")
}

func TestRankAppliesCreativityFloor(t *testing.T) {
	prefs := defaultPrefs() // balanced => floor 0.70
	candidates := []Candidate{
		{Kind: "a", Confidence: 0.9, Score: 0.5, DevicesInvolved: []string{"d1"}},
		{Kind: "b", Confidence: 0.5, Score: 0.9, DevicesInvolved: []string{"d2"}},
	}
	out := Rank(candidates, prefs)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].Kind)
}

func TestRankAppliesBlueprintMultiplierToTemplateMatchesOnly(t *testing.T) {
	prefs := defaultPrefs()
	prefs.BlueprintPreference = storage.BlueprintHigh // 1.5x
	candidates := []Candidate{
		{Kind: "template", Confidence: 0.9, Score: 0.5, IsTemplateMatch: true, DevicesInvolved: []string{"d1"}},
		{Kind: "plain", Confidence: 0.9, Score: 0.6, DevicesInvolved: []string{"d2"}},
	}
	out := Rank(candidates, prefs)
	require.Len(t, out, 2)
	require.Equal(t, "template", out[0].Kind) // 0.5*1.5=0.75 beats 0.6
}

func TestRankDeduplicatesSubsetCandidates(t *testing.T) {
	prefs := defaultPrefs()
	candidates := []Candidate{
		{Kind: "chain", Confidence: 0.9, Score: 0.9, DevicesInvolved: []string{"d1", "d2"}},
		{Kind: "pair", Confidence: 0.9, Score: 0.5, DevicesInvolved: []string{"d1"}},
	}
	out := Rank(candidates, prefs)
	require.Len(t, out, 1)
	require.Equal(t, "chain", out[0].Kind)
}

func TestRankCapsAtMaxSuggestions(t *testing.T) {
	prefs := defaultPrefs()
	prefs.MaxSuggestions = 1
	candidates := []Candidate{
		{Kind: "a", Confidence: 0.9, Score: 0.9, DevicesInvolved: []string{"d1"}},
		{Kind: "b", Confidence: 0.9, Score: 0.8, DevicesInvolved: []string{"d2"}},
	}
	out := Rank(candidates, prefs)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].Kind)
}

func TestDescribeFallsBackToTemplateOnProviderError(t *testing.T) {
	d := NewDescriber(fakeProvider{describeErr: errors.New("upstream down")})
	desc, source := d.Describe(context.Background(), Candidate{Kind: "time_of_day", AnchorEntityID: "light.kitchen"})
	require.Equal(t, "template", source)
	require.Contains(t, desc, "light.kitchen")
}

func TestDescribeUsesLLMAndSanitizesOutput(t *testing.T) {
	d := NewDescriber(fakeProvider{describeOut: "Turn on the light. password: leaked123"})
	desc, source := d.Describe(context.Background(), Candidate{Kind: "time_of_day", AnchorEntityID: "light.kitchen"})
	require.Equal(t, "llm", source)
	require.NotContains(t, desc, "leaked123")
}

func TestComposeAndPersistInsertsDraftSuggestions(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	describer := NewDescriber(nil) // force template fallback
	candidates := []Candidate{
		{Source: storage.SourcePattern, Kind: "time_of_day", AnchorEntityID: "light.kitchen", Confidence: 0.9, Score: 0.9, DevicesInvolved: []string{"light.kitchen"}},
	}
	ids, err := ComposeAndPersist(context.Background(), store, describer, candidates, defaultPrefs(), "u1", time.Now())
	require.NoError(t, err)
	require.Len(t, ids, 1)

	sug, err := store.GetSuggestion(ids[0])
	require.NoError(t, err)
	require.Equal(t, storage.SuggestionDraft, sug.Status)
	require.Equal(t, "template", sug.DescriptionSource)
	require.Nil(t, sug.ArtefactID)
}
