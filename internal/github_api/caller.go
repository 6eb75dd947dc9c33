// Package githubapi provides the caller for the GitHub REST API. It owns the
// HTTP client, authenticates with the configured token when present, and
// classifies every response before the caller inspects the payload. The
// caller itself never consumes quota; gating each call against the per-run
// budget is the orchestrator's job.

package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/model"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

// SubResourcePageSize is the fixed page size for repository, organization and
// contributor listings. Paging stops on the first short page.
const SubResourcePageSize = 50

type Caller struct {
	Logger log.Logger
	Config *cfg.Config
	Client *http.Client
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	return &Caller{
		Logger: logger,
		Config: config,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SearchUsers returns one page of the user search for a location, sorted by
// followers descending. Search payloads carry zeroed counters; callers must
// fetch details per candidate before trusting any number.
func (c *Caller) SearchUsers(ctx context.Context, location string, page int) ([]UserResponse, error) {
	fullUrl := fmt.Sprintf("%s/search/users?q=%s&sort=followers&order=desc&per_page=%d&page=%d",
		c.Config.GithubApi.ApiUrl,
		url.QueryEscape(fmt.Sprintf("location:\"%s\"", location)),
		c.Config.Crawl.PerPage, page)

	response := &SearchUsersResponse{}
	if err := c.do(ctx, fullUrl, response); err != nil {
		return nil, err
	}

	c.Logger.Debug(ctx, "Search %q page %d: %d of %d users", location, page, len(response.Items), response.TotalCount)
	if page*c.Config.Crawl.PerPage > c.Config.Crawl.MaxSearchResults {
		c.Logger.Warn(ctx, "GitHub search only exposes the first %d results per query", c.Config.Crawl.MaxSearchResults)
	}

	return response.Items, nil
}

// GetUser fetches the authoritative attribute snapshot for a login and stamps
// the fetch time.
func (c *Caller) GetUser(ctx context.Context, login string) (*model.User, error) {
	fullUrl := fmt.Sprintf("%s/users/%s", c.Config.GithubApi.ApiUrl, url.PathEscape(login))

	response := &UserResponse{}
	if err := c.do(ctx, fullUrl, response); err != nil {
		return nil, err
	}

	user := response.ToUser()
	user.LastFetched = time.Now().UTC()
	return user, nil
}

// ListUserRepos returns one page of a user's own repositories, most starred
// first.
func (c *Caller) ListUserRepos(ctx context.Context, login string, page int) ([]RepoResponse, error) {
	fullUrl := fmt.Sprintf("%s/users/%s/repos?per_page=%d&page=%d&sort=stars&direction=desc",
		c.Config.GithubApi.ApiUrl, url.PathEscape(login), SubResourcePageSize, page)

	var repos []RepoResponse
	if err := c.do(ctx, fullUrl, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// ListUserOrgs returns the organizations a user belongs to.
func (c *Caller) ListUserOrgs(ctx context.Context, login string) ([]OrgResponse, error) {
	fullUrl := fmt.Sprintf("%s/users/%s/orgs?per_page=%d",
		c.Config.GithubApi.ApiUrl, url.PathEscape(login), SubResourcePageSize)

	var orgs []OrgResponse
	if err := c.do(ctx, fullUrl, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// ListOrgRepos returns one page of an organization's repositories, most
// starred first.
func (c *Caller) ListOrgRepos(ctx context.Context, org string, page int) ([]RepoResponse, error) {
	fullUrl := fmt.Sprintf("%s/orgs/%s/repos?per_page=%d&page=%d&sort=stars&direction=desc",
		c.Config.GithubApi.ApiUrl, url.PathEscape(org), SubResourcePageSize, page)

	var repos []RepoResponse
	if err := c.do(ctx, fullUrl, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// ListContributors returns the top contributors of a repository, ordered by
// contribution count. GitHub refuses this listing for very large
// repositories; that refusal surfaces as ErrContributorsTooLarge.
func (c *Caller) ListContributors(ctx context.Context, fullName string) ([]ContributorResponse, error) {
	fullUrl := fmt.Sprintf("%s/repos/%s/contributors?per_page=%d",
		c.Config.GithubApi.ApiUrl, fullName, c.Config.Crawl.TopContributors)

	var contributors []ContributorResponse
	if err := c.do(ctx, fullUrl, &contributors); err != nil {
		return nil, err
	}
	return contributors, nil
}

// do performs one GET with bounded retries for transient failures. Rate
// limits and the contributor special case are never retried here; the
// orchestrator decides what they mean for the run.
func (c *Caller) do(ctx context.Context, fullUrl string, out interface{}) error {
	maxRetries := c.Config.GithubApi.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	backoff := time.Duration(c.Config.GithubApi.ThrottleDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt-1) * backoff)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, nil)
		if err != nil {
			return fmt.Errorf("cannot build request: %w", err)
		}

		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("User-Agent", c.Config.App.Name)
		if c.Config.GithubApi.AccessToken != "" {
			req.Header.Set("Authorization", fmt.Sprintf("token %s", c.Config.GithubApi.AccessToken))
		}

		resp, err := c.Client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("cannot send request: %w", err)
			c.Logger.Warn(ctx, "Request failed (attempt %d/%d): %v", attempt, maxRetries, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("cannot read response body: %w", err)
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("github unavailable: %s", resp.Status)
			c.Logger.Warn(ctx, "GitHub unavailable (%s), attempt %d/%d", resp.Status, attempt, maxRetries)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return c.classifyResponse(resp, body)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("cannot decode response: %w", err)
		}
		return nil
	}

	return lastErr
}
