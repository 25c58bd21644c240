package suggestions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

type fakeDeployer struct {
	artefactID string
	err        error
}

func (f fakeDeployer) Deploy(_ context.Context, _ storage.StructuredPlan) (string, error) {
	return f.artefactID, f.err
}

func newDraftSuggestion(t *testing.T, store *storage.Store) string {
	t.Helper()
	id, err := store.InsertSuggestion(storage.Suggestion{
		Status:          storage.SuggestionDraft,
		Source:          storage.SourcePattern,
		Description:     "turn on the kitchen light at 7am",
		DevicesInvolved: []string{"light.kitchen"},
		Confidence:      0.8,
		Score:           0.8,
		UserID:          "u1",
	}, time.Now())
	require.NoError(t, err)
	return id
}

func TestApproveDeploysAndRecordsArtefact(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	id := newDraftSuggestion(t, store)

	artefactID, err := Approve(context.Background(), store, fakeProvider{}, fakeDeployer{artefactID: "A-123"}, id, time.Now())
	require.NoError(t, err)
	require.Equal(t, "A-123", artefactID)

	sug, err := store.GetSuggestion(id)
	require.NoError(t, err)
	require.Equal(t, storage.SuggestionDeployed, sug.Status)
	require.NotNil(t, sug.ArtefactID)
	require.Equal(t, "A-123", *sug.ArtefactID)
}

func TestApproveSurfacesDeployFailureWithoutMutatingStatus(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	id := newDraftSuggestion(t, store)

	_, err = Approve(context.Background(), store, fakeProvider{}, fakeDeployer{err: errors.New("deploy unavailable")}, id, time.Now())
	require.Error(t, err)

	sug, err := store.GetSuggestion(id)
	require.NoError(t, err)
	require.Equal(t, storage.SuggestionDraft, sug.Status)
}

func TestRejectSetsStatusWithoutArtefact(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	id := newDraftSuggestion(t, store)

	require.NoError(t, Reject(store, id))

	sug, err := store.GetSuggestion(id)
	require.NoError(t, err)
	require.Equal(t, storage.SuggestionRejected, sug.Status)
	require.Nil(t, sug.ArtefactID)
}
