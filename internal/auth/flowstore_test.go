package auth

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBoltStore(t *testing.T) (*BoltFlowStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "flows.db")
	store, err := OpenBoltFlowStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestFlowStores_SaveTakeOnce(t *testing.T) {
	boltStore, _ := openTestBoltStore(t)
	stores := map[string]FlowStore{
		"memory": NewMemoryFlowStore(),
		"bolt":   boltStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			rec := FlowRecord{State: "s1", ClientID: "abc", RedirectURI: testRedirect, Scope: "read", CreatedAt: created}
			require.NoError(t, store.Save(rec))

			got, err := store.Take("s1")
			require.NoError(t, err)
			assert.Equal(t, rec.ClientID, got.ClientID)
			assert.Equal(t, rec.RedirectURI, got.RedirectURI)
			assert.Equal(t, rec.Scope, got.Scope)
			assert.True(t, created.Equal(got.CreatedAt))

			_, err = store.Take("s1")
			assert.ErrorIs(t, err, ErrUnknownFlow)

			assert.Error(t, store.Save(FlowRecord{}))
		})
	}
}

func TestBoltFlowStore_SurvivesReopen(t *testing.T) {
	store, path := openTestBoltStore(t)
	require.NoError(t, store.Save(FlowRecord{State: "s1", CreatedAt: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := OpenBoltFlowStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Take("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.State)
}

func TestBoltFlowStore_PendingAndPrune(t *testing.T) {
	store, _ := openTestBoltStore(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(FlowRecord{State: "fresh", CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Save(FlowRecord{State: "stale", CreatedAt: now.Add(-time.Hour)}))

	pending, err := store.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "stale", pending[0].State)
	assert.Equal(t, "fresh", pending[1].State)

	removed, err := store.Prune(now, DefaultFlowTTL)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	pending, err = store.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "fresh", pending[0].State)
}

func TestImplicitFlow_WithBoltStoreAcrossInstances(t *testing.T) {
	store, _ := openTestBoltStore(t)
	cfg := FlowConfig{AuthorizeURL: "https://api.example.com/auth/authorize", ClientID: "abc"}

	starter, err := NewImplicitFlow(cfg, NewState(), store, &PrintNavigator{Out: io.Discard})
	require.NoError(t, err)
	rec, err := starter.Authenticate(t.Context(), testRedirect)
	require.NoError(t, err)

	state := NewState()
	finisher, err := NewImplicitFlow(cfg, state, store, nil)
	require.NoError(t, err)
	res := finisher.CheckReturn(t.Context(), testRedirect+"#access_token=tok&state="+rec.State)

	assert.Equal(t, PhaseResolved, res.Phase)
	assert.Equal(t, "tok", state.Token())
}
