package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/checkpoint"
	githubapi "github.com/5566cannotdead/OSSRanking/internal/github_api"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

// Crawler is one invocation of the location survey. A run always terminates
// in bounded work: it either finishes the remaining locations or halts at a
// budget or rate-limit boundary and leaves a checkpoint to resume from.
type Crawler interface {
	Crawl(ctx context.Context) (*Summary, error)
}

// Summary reports what one invocation did. BudgetExhausted and RateLimited
// are normal terminations, not errors; the caller re-runs later to continue.
type Summary struct {
	Completed       []string
	Failed          map[string]string
	Remaining       []string
	NewUsers        int
	RequestsUsed    int
	BudgetExhausted bool
	RateLimited     bool
	ResetAt         time.Time
	Done            bool
}

// WaitHint returns the human-readable time left until the rate limit lifts.
func (s *Summary) WaitHint(now time.Time) string {
	if !s.RateLimited || !s.ResetAt.After(now) {
		return ""
	}
	return fmt.Sprintf("resume in %s", s.ResetAt.Sub(now).Round(time.Minute))
}

// Publisher is the optional sink for newly observed developers, satisfied by
// pkg/kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

func FactoryCrawler(version string, logger log.Logger, config *cfg.Config, caller *githubapi.Caller, checkpoints *checkpoint.Store, users *store.UserStore) (Crawler, error) {
	switch version {
	case "v1":
		return NewCrawlerV1(logger, config, caller, checkpoints, users)
	default:
		return nil, fmt.Errorf("unsupported crawler version: %s", version)
	}
}
