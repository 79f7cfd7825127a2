package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
)

func newReadySession(t *testing.T) *analysis.Session {
	t.Helper()

	session := analysis.NewSession(1, "intake")
	require.NoError(t, session.AttachScript("1/script_v1.json"))
	return session
}

func TestSessionStoreClaimNextReady(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	// Lower ids claim first.
	first, err := store.Create(ctx, newReadySession(t))
	require.NoError(t, err)
	second, err := store.Create(ctx, newReadySession(t))
	require.NoError(t, err)

	claimed, err := store.ClaimNextReady(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID(), claimed.ID())
	assert.Equal(t, analysis.StateStart, claimed.AnalyzeState())

	claimed, err = store.ClaimNextReady(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.ID(), claimed.ID())

	claimed, err = store.ClaimNextReady(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestSessionStoreClaimSkipsIneligible(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	// READY without a script reference and NONE are both ineligible.
	_, err := store.Create(ctx, analysis.NewSession(1, "no script"))
	require.NoError(t, err)

	claimed, err := store.ClaimNextReady(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestSessionStoreFinalizeSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	created, err := store.Create(ctx, newReadySession(t))
	require.NoError(t, err)
	_, err = store.ClaimNextReady(ctx)
	require.NoError(t, err)

	require.NoError(t, store.FinalizeSuccess(ctx, created.ID(), "LOCAL/1/analyze_report_v1.json"))

	session, err := store.Get(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, analysis.StateDone, session.AnalyzeState())
	assert.Equal(t, "LOCAL/1/analyze_report_v1.json", session.AnalyzeURL())
}

func TestSessionStoreFinalizeRejectsUnclaimed(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	created, err := store.Create(ctx, newReadySession(t))
	require.NoError(t, err)

	err = store.FinalizeSuccess(ctx, created.ID(), "ref")
	require.Error(t, err)
	var domainErr *analysis.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, analysis.ErrKindStaleSession, domainErr.Kind())

	err = store.FinalizeFailure(ctx, created.ID())
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, analysis.ErrKindStaleSession, domainErr.Kind())
}

func TestSessionStoreFinalizeUnknownSession(t *testing.T) {
	store := NewSessionStore()

	err := store.FinalizeFailure(context.Background(), 999)
	var domainErr *analysis.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, analysis.ErrKindStaleSession, domainErr.Kind())
}

func TestSessionStoreGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	created, err := store.Create(ctx, newReadySession(t))
	require.NoError(t, err)

	loaded, err := store.Get(ctx, created.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Start())

	// Mutating the returned aggregate must not touch stored state.
	again, err := store.Get(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, analysis.StateReady, again.AnalyzeState())
}

func TestObservationStoreListAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewObservationStore([]analysis.Observation{
		analysis.NewObservation(1, "경청", "active_listening"),
		analysis.NewObservation(2, "공감", "empathy"),
	})

	observations, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, observations, 2)
	assert.Equal(t, "active_listening", observations[0].CanonicalName())

	obs, err := store.Get(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, "empathy", obs.CanonicalName())

	missing, err := store.Get(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
