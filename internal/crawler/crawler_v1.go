// Crawler version 1
// Serialized location survey: one platform call at a time, every call gated
// by the per-run budget, every response classified before use. Progress is
// checkpointed per whole location; a rate limit or an exhausted budget halts
// the run at the next call boundary and the next invocation resumes from the
// checkpoint.

package crawler

import (
	"context"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/checkpoint"
	githubapi "github.com/5566cannotdead/OSSRanking/internal/github_api"
	"github.com/5566cannotdead/OSSRanking/internal/limiter"
	"github.com/5566cannotdead/OSSRanking/internal/model"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

type CrawlerV1 struct {
	Logger      log.Logger
	Config      *cfg.Config
	Caller      *githubapi.Caller
	Checkpoints *checkpoint.Store
	Users       *store.UserStore
	Publisher   Publisher
	rateLimiter *limiter.RateLimiter
}

func NewCrawlerV1(logger log.Logger, config *cfg.Config, caller *githubapi.Caller, checkpoints *checkpoint.Store, users *store.UserStore) (*CrawlerV1, error) {
	return &CrawlerV1{
		Logger:      logger,
		Config:      config,
		Caller:      caller,
		Checkpoints: checkpoints,
		Users:       users,
		rateLimiter: limiter.NewRateLimiter(config.GithubApi.RequestsPerSecond),
	}, nil
}

// outcome of one location survey
type locationOutcome struct {
	usersFound      int
	budgetExhausted bool
	rateLimited     bool
	resetAt         time.Time
	failed          bool
	errMsg          string
}

func (c *CrawlerV1) Crawl(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	c.Logger.Info(ctx, "Starting location crawl at %s", startTime.Format(time.RFC3339))

	cp, err := c.Checkpoints.Load(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Completed: []string{},
		Failed:    map[string]string{},
	}

	// A still-active rate limit forbids any platform call this invocation
	if active, wait := cp.RateLimitActive(time.Now()); active {
		summary.RateLimited = true
		summary.ResetAt = *cp.RateLimitResetAt
		summary.Remaining = cp.Remaining(c.Config.Crawl.Locations)
		c.Logger.Warn(ctx, "Rate limit still in force, %s", summary.WaitHint(time.Now()))
		c.Logger.Warn(ctx, "No calls attempted, wait %s and re-run", wait.Round(time.Second))
		return summary, nil
	}

	budget := limiter.NewBudget(cp.RequestBudgetPerRun)
	collected := []model.User{}

	for _, location := range cp.Remaining(c.Config.Crawl.Locations) {
		out := c.crawlLocation(ctx, location, budget, &collected)
		cp.RequestsThisRun = budget.Used()

		switch {
		case out.budgetExhausted:
			c.Logger.Info(ctx, "Request budget (%d) exhausted at %q, re-run to continue", cp.RequestBudgetPerRun, location)
			summary.BudgetExhausted = true
			if err := c.Checkpoints.Save(ctx, cp); err != nil {
				return nil, err
			}
			return c.finish(ctx, cp, summary, collected, budget)

		case out.rateLimited:
			cp.MarkRateLimited(out.resetAt)
			summary.RateLimited = true
			summary.ResetAt = out.resetAt
			c.Logger.Warn(ctx, "Rate limit hit on %q, %s", location, summary.WaitHint(time.Now()))
			if err := c.Checkpoints.Save(ctx, cp); err != nil {
				return nil, err
			}
			return c.finish(ctx, cp, summary, collected, budget)

		case out.failed:
			cp.MarkLocationFailed(location, out.errMsg)
			summary.Failed[location] = out.errMsg
			c.Logger.Error(ctx, "Location %q failed: %s", location, out.errMsg)
			if err := c.Checkpoints.Save(ctx, cp); err != nil {
				return nil, err
			}

		default:
			cp.MarkLocationCompleted(location, out.usersFound)
			summary.Completed = append(summary.Completed, location)
			c.Logger.Info(ctx, "Location %q done, %d qualifying users", location, out.usersFound)
			if err := c.Checkpoints.Save(ctx, cp); err != nil {
				return nil, err
			}
		}
	}

	if len(cp.Remaining(c.Config.Crawl.Locations)) == 0 {
		cp.IsCompleted = true
		cp.ClearRateLimit()
		if err := c.Checkpoints.Save(ctx, cp); err != nil {
			return nil, err
		}
		c.Logger.Info(ctx, "All %d locations surveyed, %d users found in total",
			len(c.Config.Crawl.Locations), cp.TotalUsersFound)
	}

	return c.finish(ctx, cp, summary, collected, budget)
}

// finish merges everything gathered so far, publishes it, and fills the
// run-level counters. Called on every termination path so partial results
// are never dropped.
func (c *CrawlerV1) finish(ctx context.Context, cp *checkpoint.Checkpoint, summary *Summary, collected []model.User, budget *limiter.Budget) (*Summary, error) {
	if len(collected) > 0 {
		if _, _, err := c.Users.MergeAndSave(ctx, collected); err != nil {
			return nil, err
		}
		c.publish(ctx, collected)
	}

	summary.NewUsers = len(collected)
	summary.RequestsUsed = budget.Used()
	summary.Remaining = cp.Remaining(c.Config.Crawl.Locations)
	summary.Done = cp.IsCompleted

	c.Logger.Info(ctx, "Run summary: %d completed, %d failed, %d remaining, %d requests used",
		len(summary.Completed), len(summary.Failed), len(summary.Remaining), summary.RequestsUsed)
	return summary, nil
}

// crawlLocation surveys one location: paged search sorted by followers
// descending, then a detail fetch per candidate. The search payload carries
// placeholder counters, so the threshold is only ever applied to detail
// responses. Because the platform pre-sorts by followers, the first
// below-threshold candidate ends the location early; that shortcut is
// disabled the moment an out-of-order page proves the sort contract broken.
func (c *CrawlerV1) crawlLocation(ctx context.Context, location string, budget *limiter.Budget, collected *[]model.User) locationOutcome {
	c.Logger.Info(ctx, "Surveying location %q", location)

	found := 0
	processed := 0
	page := 1
	orderVerified := true
	prevFollowers := int(^uint(0) >> 1) // max int

	for {
		if !budget.TryConsume() {
			return locationOutcome{budgetExhausted: true}
		}
		c.throttle()

		candidates, err := c.Caller.SearchUsers(ctx, location, page)
		if err != nil {
			if rle, ok := githubapi.AsRateLimit(err); ok {
				return locationOutcome{rateLimited: true, resetAt: rle.ResetAt}
			}
			return locationOutcome{failed: true, errMsg: err.Error()}
		}
		if len(candidates) == 0 {
			break
		}

		for _, candidate := range candidates {
			if processed >= c.Config.Crawl.MaxCandidatesPerLocation {
				return locationOutcome{usersFound: found}
			}

			if !budget.TryConsume() {
				return locationOutcome{budgetExhausted: true}
			}
			c.throttle()

			detail, err := c.Caller.GetUser(ctx, candidate.Login)
			if err != nil {
				if rle, ok := githubapi.AsRateLimit(err); ok {
					return locationOutcome{rateLimited: true, resetAt: rle.ResetAt}
				}
				// One broken candidate does not fail the location
				c.Logger.Warn(ctx, "Cannot fetch detail for %q: %v", candidate.Login, err)
				continue
			}
			processed++

			if detail.Followers > prevFollowers && orderVerified {
				c.Logger.Warn(ctx, "Search results for %q are not sorted by followers, early stop disabled", location)
				orderVerified = false
			}
			prevFollowers = detail.Followers

			if detail.Followers < c.Config.Crawl.MinFollowers {
				if orderVerified {
					c.Logger.Debug(ctx, "%q has %d followers, below %d; remaining candidates are lower still",
						detail.Login, detail.Followers, c.Config.Crawl.MinFollowers)
					return locationOutcome{usersFound: found}
				}
				continue
			}

			*collected = append(*collected, *detail)
			found++
		}

		if len(candidates) < c.Config.Crawl.PerPage {
			break
		}
		page++
		if page*c.Config.Crawl.PerPage > c.Config.Crawl.MaxSearchResults {
			break
		}
	}

	return locationOutcome{usersFound: found}
}

// publish forwards newly observed developers to the configured topic. The
// crawl does not depend on the archive pipeline, so publish failures only log.
func (c *CrawlerV1) publish(ctx context.Context, users []model.User) {
	if c.Publisher == nil {
		return
	}
	for i := range users {
		if err := c.Publisher.Publish(ctx, "developer", &users[i]); err != nil {
			c.Logger.Warn(ctx, "Cannot publish %q to kafka: %v", users[i].Login, err)
			return
		}
	}
	c.Logger.Info(ctx, "Published %d developers to %s", len(users), c.Config.Kafka.DeveloperTopic)
}

// throttle blocks until the soft per-second rate allows another call.
func (c *CrawlerV1) throttle() {
	for !c.rateLimiter.Allow() {
		time.Sleep(time.Duration(c.Config.GithubApi.ThrottleDelayMs) * time.Millisecond)
	}
}

var _ Crawler = (*CrawlerV1)(nil)
