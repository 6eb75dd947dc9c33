package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	config, err := loader.Load()
	require.NoError(t, err)
	config.Storage.CheckpointFile = filepath.Join(t.TempDir(), "run_progress.json")

	logger, err := log.NewCslLogger()
	require.NoError(t, err)

	store, err := NewStore(logger, config)
	require.NoError(t, err)
	return store
}

func TestStore_Load_MissingFileStartsFresh(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	cp, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, cp.CompletedLocations)
	require.False(t, cp.IsCompleted)
	require.Equal(t, store.Config.GithubApi.RequestBudgetPerRun, cp.RequestBudgetPerRun)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	cp, err := store.Load(ctx)
	require.NoError(t, err)
	cp.MarkLocationCompleted("Taipei", 12)
	cp.MarkLocationFailed("Hsinchu", "boom")
	cp.RequestsThisRun = 7
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Taipei"}, loaded.CompletedLocations)
	require.Equal(t, []string{"Hsinchu"}, loaded.FailedLocations)
	require.Equal(t, 12, loaded.TotalUsersFound)
	require.False(t, loaded.LastRunTime.IsZero())

	// each invocation starts over against the full configured budget
	require.Equal(t, 0, loaded.RequestsThisRun)
	require.Equal(t, store.Config.GithubApi.RequestBudgetPerRun, loaded.RequestBudgetPerRun)
}

func TestStore_Load_CorruptFileStartsOver(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Config.Storage.CheckpointFile, []byte("{not json"), 0o644))

	cp, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, cp.CompletedLocations)
	require.Equal(t, 0, cp.TotalUsersFound)
}

func TestStore_Load_ExpiredRateLimitIsCleared(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	cp, err := store.Load(ctx)
	require.NoError(t, err)
	cp.MarkRateLimited(time.Now().Add(-time.Minute))
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.False(t, loaded.RateLimitEncountered)
	require.Nil(t, loaded.RateLimitResetAt)
}

func TestStore_Load_ActiveRateLimitIsKept(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	cp, err := store.Load(ctx)
	require.NoError(t, err)
	resetAt := time.Now().Add(30 * time.Minute)
	cp.MarkRateLimited(resetAt)
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, loaded.RateLimitEncountered)
	active, _ := loaded.RateLimitActive(time.Now())
	require.True(t, active)
}
