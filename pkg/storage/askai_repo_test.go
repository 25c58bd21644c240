package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAskAISessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	id, err := store.CreateAskAISession("u1", "turn on the light when i walk in", now)
	require.NoError(t, err)

	sess, err := store.GetAskAISession(id)
	require.NoError(t, err)
	require.Equal(t, AskAIReceived, sess.State)
	require.Equal(t, "u1", sess.UserID)
	require.Empty(t, sess.Entities)

	sess.State = AskAIClarifying
	sess.NormalizedQuery = "turn on the light when i walk in"
	sess.Ambiguities = []Ambiguity{{Span: "the light", Options: []string{"light.kitchen_main", "light.office"}}}
	sess.ClarificationCount = 1
	require.NoError(t, store.UpdateAskAISession(sess, now.Add(time.Second)))

	reloaded, err := store.GetAskAISession(id)
	require.NoError(t, err)
	require.Equal(t, AskAIClarifying, reloaded.State)
	require.Len(t, reloaded.Ambiguities, 1)
	require.Equal(t, 1, reloaded.ClarificationCount)
	require.True(t, reloaded.UpdatedAt.After(reloaded.CreatedAt) || reloaded.UpdatedAt.Equal(reloaded.CreatedAt))
}

func TestAskAISessionAbort(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	id, err := store.CreateAskAISession("u1", "do a thing", now)
	require.NoError(t, err)

	sess, err := store.GetAskAISession(id)
	require.NoError(t, err)
	sess.State = AskAIAborted
	sess.AbortReason = "clarification_limit_exceeded"
	require.NoError(t, store.UpdateAskAISession(sess, now))

	reloaded, err := store.GetAskAISession(id)
	require.NoError(t, err)
	require.Equal(t, AskAIAborted, reloaded.State)
	require.Equal(t, "clarification_limit_exceeded", reloaded.AbortReason)
}
