package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

// Store reads and writes the checkpoint file. Writes go through a temp file
// and rename so a reader can never observe a torn checkpoint.
type Store struct {
	Logger log.Logger
	Config *cfg.Config
}

func NewStore(logger log.Logger, config *cfg.Config) (*Store, error) {
	return &Store{
		Logger: logger,
		Config: config,
	}, nil
}

// Load returns the persisted checkpoint, or a fresh one when the file does
// not exist yet. The per-run request counter is reset and a stale rate-limit
// flag is cleared before the checkpoint is handed to the orchestrator.
func (s *Store) Load(ctx context.Context) (*Checkpoint, error) {
	path := s.Config.Storage.CheckpointFile
	budget := s.Config.GithubApi.RequestBudgetPerRun

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.Logger.Info(ctx, "No checkpoint at %s, starting a fresh crawl", path)
			return NewCheckpoint(budget), nil
		}
		return nil, fmt.Errorf("cannot read checkpoint %s: %w", path, err)
	}

	cp := &Checkpoint{}
	if err := json.Unmarshal(raw, cp); err != nil {
		s.Logger.Warn(ctx, "Checkpoint %s is corrupt (%v), starting over", path, err)
		return NewCheckpoint(budget), nil
	}
	if cp.CompletedLocations == nil {
		cp.CompletedLocations = []string{}
	}
	if cp.FailedLocations == nil {
		cp.FailedLocations = []string{}
	}

	// Every invocation starts with a full budget
	cp.RequestsThisRun = 0
	cp.RequestBudgetPerRun = budget

	if cp.RateLimitEncountered && cp.RateLimitResetAt != nil {
		if now := time.Now(); now.Before(*cp.RateLimitResetAt) {
			wait := cp.RateLimitResetAt.Sub(now)
			s.Logger.Warn(ctx, "Previous run hit the rate limit, %s left until reset (%s)",
				wait.Round(time.Second), cp.RateLimitResetAt.Format(time.RFC3339))
		} else {
			s.Logger.Info(ctx, "Rate limit window has passed, resuming")
			cp.ClearRateLimit()
		}
	}

	s.Logger.Info(ctx, "Loaded checkpoint: %d locations completed, %d failed, %d users found",
		len(cp.CompletedLocations), len(cp.FailedLocations), cp.TotalUsersFound)
	return cp, nil
}

// Save persists the checkpoint atomically. A failure here is fatal to the
// invocation; continuing without durable progress risks double-counting on
// the next run.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	path := s.Config.Storage.CheckpointFile
	cp.LastRunTime = time.Now().UTC()

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot replace checkpoint %s: %w", path, err)
	}

	return nil
}
