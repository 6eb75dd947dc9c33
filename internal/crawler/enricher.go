// Project enrichment
// Second pass over the discovered users: fetch each user's own repositories
// and the repositories of their organizations, keep the strongest projects,
// and derive the popularity score. Runs under the same budget and rate-limit
// rules as the location crawl.

package crawler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	githubapi "github.com/5566cannotdead/OSSRanking/internal/github_api"
	"github.com/5566cannotdead/OSSRanking/internal/limiter"
	"github.com/5566cannotdead/OSSRanking/internal/model"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

type Enricher struct {
	Logger      log.Logger
	Config      *cfg.Config
	Caller      *githubapi.Caller
	Users       *store.UserStore
	rateLimiter *limiter.RateLimiter
}

func NewEnricher(logger log.Logger, config *cfg.Config, caller *githubapi.Caller, users *store.UserStore) (*Enricher, error) {
	return &Enricher{
		Logger:      logger,
		Config:      config,
		Caller:      caller,
		Users:       users,
		rateLimiter: limiter.NewRateLimiter(config.GithubApi.RequestsPerSecond),
	}, nil
}

// Enrich walks the stored users in rank order and fills in projects and
// scores. Users enriched in an earlier run keep their data until the pass
// reaches them again, so an interrupted run loses nothing: the store is
// rewritten after every user.
func (e *Enricher) Enrich(ctx context.Context) (*Summary, error) {
	users, err := e.Users.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		e.Logger.Warn(ctx, "No stored users to enrich, run the crawl first")
		return &Summary{Done: true}, nil
	}

	budget := limiter.NewBudget(e.Config.GithubApi.RequestBudgetPerRun)
	summary := &Summary{Completed: []string{}, Failed: map[string]string{}}
	enriched := 0

	for i := range users {
		out := e.enrichUser(ctx, &users[i], budget)
		switch {
		case out.budgetExhausted:
			e.Logger.Info(ctx, "Request budget (%d) exhausted after %d users, re-run to continue",
				e.Config.GithubApi.RequestBudgetPerRun, enriched)
			summary.BudgetExhausted = true
			summary.RequestsUsed = budget.Used()
			return summary, e.Users.Save(ctx, users)

		case out.rateLimited:
			summary.RateLimited = true
			summary.ResetAt = out.resetAt
			summary.RequestsUsed = budget.Used()
			e.Logger.Warn(ctx, "Rate limit hit while enriching %q, %s", users[i].Login, summary.WaitHint(time.Now()))
			return summary, e.Users.Save(ctx, users)

		case out.failed:
			summary.Failed[users[i].Login] = out.errMsg
			e.Logger.Error(ctx, "Cannot enrich %q: %s", users[i].Login, out.errMsg)

		default:
			enriched++
			summary.Completed = append(summary.Completed, users[i].Login)
			if err := e.Users.Save(ctx, users); err != nil {
				return nil, err
			}
		}
	}

	summary.Done = true
	summary.RequestsUsed = budget.Used()
	e.Logger.Info(ctx, "Enriched %d of %d users with %d requests", enriched, len(users), budget.Used())
	return summary, e.Users.Save(ctx, users)
}

func (e *Enricher) enrichUser(ctx context.Context, user *model.User, budget *limiter.Budget) locationOutcome {
	e.Logger.Info(ctx, "Enriching %q", user.Login)

	owned, out := e.ownedProjects(ctx, user, budget)
	if out.budgetExhausted || out.rateLimited || out.failed {
		return out
	}
	contributed, out := e.contributedProjects(ctx, user, budget)
	if out.budgetExhausted || out.rateLimited || out.failed {
		return out
	}

	projects := append(topProjects(owned, e.Config.Crawl.TopProjects),
		topProjects(contributed, e.Config.Crawl.TopProjects)...)

	user.Projects = projects
	user.TotalStars = 0
	user.TotalForks = 0
	for _, p := range projects {
		user.TotalStars += p.Stars
		user.TotalForks += p.Forks
	}
	user.Score = float64(user.Followers + user.TotalStars + user.TotalForks)
	return locationOutcome{usersFound: 1}
}

// ownedProjects pages through the user's own repositories, skipping forks.
func (e *Enricher) ownedProjects(ctx context.Context, user *model.User, budget *limiter.Budget) ([]model.Project, locationOutcome) {
	projects := []model.Project{}
	page := 1
	for {
		if !budget.TryConsume() {
			return nil, locationOutcome{budgetExhausted: true}
		}
		e.throttle()

		repos, err := e.Caller.ListUserRepos(ctx, user.Login, page)
		if err != nil {
			return nil, classifyOutcome(err)
		}
		for _, r := range repos {
			if r.Fork {
				continue
			}
			projects = append(projects, model.Project{
				Name:        r.Name,
				FullName:    r.FullName,
				Description: r.Description,
				HtmlUrl:     r.HtmlUrl,
				Stars:       r.StargazersCount,
				Forks:       r.ForksCount,
				Language:    r.Language,
				Owned:       true,
				CreatedAt:   r.CreatedAt,
				UpdatedAt:   r.UpdatedAt,
			})
		}
		if len(repos) < githubapi.SubResourcePageSize {
			break
		}
		page++
	}
	return projects, locationOutcome{}
}

// contributedProjects finds organization repositories where the user ranks
// among the top contributors. Repositories whose contributor list is too
// large to fetch are skipped without failing the user.
func (e *Enricher) contributedProjects(ctx context.Context, user *model.User, budget *limiter.Budget) ([]model.Project, locationOutcome) {
	if !budget.TryConsume() {
		return nil, locationOutcome{budgetExhausted: true}
	}
	e.throttle()

	orgs, err := e.Caller.ListUserOrgs(ctx, user.Login)
	if err != nil {
		return nil, classifyOutcome(err)
	}

	projects := []model.Project{}
	for _, org := range orgs {
		page := 1
		for {
			if !budget.TryConsume() {
				return nil, locationOutcome{budgetExhausted: true}
			}
			e.throttle()

			repos, err := e.Caller.ListOrgRepos(ctx, org.Login, page)
			if err != nil {
				return nil, classifyOutcome(err)
			}
			for _, r := range repos {
				if r.Fork {
					continue
				}
				if !budget.TryConsume() {
					return nil, locationOutcome{budgetExhausted: true}
				}
				e.throttle()

				rank, err := e.contributorRank(ctx, r.FullName, user.Login)
				if err != nil {
					if err == githubapi.ErrContributorsTooLarge {
						e.Logger.Debug(ctx, "Skipping %s, contributor list too large", r.FullName)
						continue
					}
					return nil, classifyOutcome(err)
				}
				if rank == 0 {
					continue
				}
				projects = append(projects, model.Project{
					Name:            r.Name,
					FullName:        r.FullName,
					Description:     r.Description,
					HtmlUrl:         r.HtmlUrl,
					Stars:           r.StargazersCount,
					Forks:           r.ForksCount,
					Language:        r.Language,
					Owned:           false,
					Organization:    org.Login,
					ContributorRank: rank,
					CreatedAt:       r.CreatedAt,
					UpdatedAt:       r.UpdatedAt,
				})
			}
			if len(repos) < githubapi.SubResourcePageSize {
				break
			}
			page++
		}
	}
	return projects, locationOutcome{}
}

// contributorRank returns the user's 1-based position among the repository's
// top contributors, or 0 when the user is not among them.
func (e *Enricher) contributorRank(ctx context.Context, fullName, login string) (int, error) {
	contributors, err := e.Caller.ListContributors(ctx, fullName)
	if err != nil {
		return 0, err
	}
	limit := e.Config.Crawl.TopContributors
	for i, c := range contributors {
		if i >= limit {
			break
		}
		if strings.EqualFold(c.Login, login) {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (e *Enricher) throttle() {
	for !e.rateLimiter.Allow() {
		time.Sleep(time.Duration(e.Config.GithubApi.ThrottleDelayMs) * time.Millisecond)
	}
}

// topProjects keeps the n strongest projects by combined stars and forks.
func topProjects(projects []model.Project, n int) []model.Project {
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].Stars+projects[i].Forks > projects[j].Stars+projects[j].Forks
	})
	if len(projects) > n {
		projects = projects[:n]
	}
	return projects
}

func classifyOutcome(err error) locationOutcome {
	if rle, ok := githubapi.AsRateLimit(err); ok {
		return locationOutcome{rateLimited: true, resetAt: rle.ResetAt}
	}
	return locationOutcome{failed: true, errMsg: err.Error()}
}
