// Package store persists the deduplicated collection of discovered users as
// a JSON file. Merging is last-writer-wins keyed by the numeric GitHub ID,
// which is safe because invocations are single-writer and sequential.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/model"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

type UserStore struct {
	Logger log.Logger
	Config *cfg.Config
}

// MergeStats summarizes one merge pass.
type MergeStats struct {
	Added     int
	Updated   int
	Unchanged int
}

func NewUserStore(logger log.Logger, config *cfg.Config) (*UserStore, error) {
	return &UserStore{
		Logger: logger,
		Config: config,
	}, nil
}

// Load returns the stored collection; a missing file is an empty first-run
// collection, not an error.
func (s *UserStore) Load(ctx context.Context) ([]model.User, error) {
	path := s.Config.Storage.UsersFile

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.User{}, nil
		}
		return nil, fmt.Errorf("cannot read user data %s: %w", path, err)
	}

	var users []model.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("cannot decode user data %s: %w", path, err)
	}

	s.Logger.Info(ctx, "Loaded %d existing users from %s", len(users), path)
	return users, nil
}

// MergeAndSave folds newUsers into the stored collection. An unknown ID is
// inserted; a known ID is replaced only when an attribute actually changed,
// so a pure re-fetch does not churn the file. The merged collection is
// persisted sorted by followers descending and returned.
func (s *UserStore) MergeAndSave(ctx context.Context, newUsers []model.User) ([]model.User, MergeStats, error) {
	existing, err := s.Load(ctx)
	if err != nil {
		return nil, MergeStats{}, err
	}

	merged := make(map[int64]model.User, len(existing)+len(newUsers))
	for _, u := range existing {
		merged[u.ID] = u
	}

	stats := MergeStats{}
	for _, nu := range newUsers {
		old, ok := merged[nu.ID]
		switch {
		case !ok:
			merged[nu.ID] = nu
			stats.Added++
		case old.AttributesDiffer(&nu):
			merged[nu.ID] = nu
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}

	result := make([]model.User, 0, len(merged))
	for _, u := range merged {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Followers != result[j].Followers {
			return result[i].Followers > result[j].Followers
		}
		return result[i].ID < result[j].ID
	})

	if err := s.save(result); err != nil {
		return nil, stats, err
	}

	s.Logger.Info(ctx, "Merge complete: %d added, %d updated, %d unchanged, %d total",
		stats.Added, stats.Updated, stats.Unchanged, len(result))
	return result, stats, nil
}

// Save rewrites the whole collection, preserving the caller's ordering.
func (s *UserStore) Save(ctx context.Context, users []model.User) error {
	return s.save(users)
}

func (s *UserStore) save(users []model.User) error {
	path := s.Config.Storage.UsersFile

	raw, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal user data: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".users-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp user data: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot write user data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot close temp user data: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot replace user data %s: %w", path, err)
	}

	return nil
}
