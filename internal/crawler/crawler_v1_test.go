package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/checkpoint"
	githubapi "github.com/5566cannotdead/OSSRanking/internal/github_api"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

// fakeUser is one account the fake platform knows about.
type fakeUser struct {
	id        int64
	login     string
	followers int
}

// fakeGithub emulates the two endpoints the location survey touches: user
// search per location and the per-user detail. Detail logins listed in
// rateLimited answer 403 with quota headers instead.
type fakeGithub struct {
	byLocation   map[string][]fakeUser
	rateLimited  map[string]int64 // login -> reset unix
	failSearches map[string]bool  // location -> answer 422
	requestCount int64
}

func (f *fakeGithub) requests() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

func (f *fakeGithub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/search/users", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.requestCount, 1)
		for location := range f.failSearches {
			if strings.Contains(r.URL.Query().Get("q"), location) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				fmt.Fprint(w, `{"message":"Validation Failed"}`)
				return
			}
		}
		for location, users := range f.byLocation {
			if strings.Contains(r.URL.Query().Get("q"), location) {
				items := make([]string, 0, len(users))
				for _, u := range users {
					items = append(items, fmt.Sprintf(`{"login":%q,"id":%d}`, u.login, u.id))
				}
				fmt.Fprintf(w, `{"total_count":%d,"incomplete_results":false,"items":[%s]}`,
					len(users), strings.Join(items, ","))
				return
			}
		}
		fmt.Fprint(w, `{"total_count":0,"incomplete_results":false,"items":[]}`)
	})

	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.requestCount, 1)
		login, _ := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/users/"))

		if resetAt, ok := f.rateLimited[login]; ok {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
			return
		}

		for _, users := range f.byLocation {
			for _, u := range users {
				if u.login == login {
					fmt.Fprintf(w, `{"login":%q,"id":%d,"followers":%d}`, u.login, u.id, u.followers)
					return
				}
			}
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	return mux
}

func newTestCrawler(t *testing.T, apiUrl string, locations []string, budget int) (*CrawlerV1, *cfg.Config) {
	t.Helper()

	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	config, err := loader.Load()
	require.NoError(t, err)

	dir := t.TempDir()
	config.Storage.CheckpointFile = filepath.Join(dir, "run_progress.json")
	config.Storage.UsersFile = filepath.Join(dir, "Users.json")
	config.GithubApi.ApiUrl = apiUrl
	config.GithubApi.RequestBudgetPerRun = budget
	config.GithubApi.RequestsPerSecond = 1000
	config.GithubApi.ThrottleDelayMs = 1
	config.GithubApi.MaxRetries = 1
	config.Crawl.Locations = locations

	logger, err := log.NewCslLogger()
	require.NoError(t, err)
	caller := githubapi.NewCaller(logger, config)
	checkpoints, err := checkpoint.NewStore(logger, config)
	require.NoError(t, err)
	users, err := store.NewUserStore(logger, config)
	require.NoError(t, err)

	c, err := NewCrawlerV1(logger, config, caller, checkpoints, users)
	require.NoError(t, err)
	return c, config
}

func TestCrawlerV1_BudgetHaltAndResume(t *testing.T) {
	t.Parallel()

	fake := &fakeGithub{byLocation: map[string][]fakeUser{
		"Taipei":    {{id: 1, login: "a1", followers: 500}, {id: 2, login: "a2", followers: 400}},
		"Kaohsiung": {},
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, config := newTestCrawler(t, srv.URL, []string{"Taipei", "Kaohsiung"}, 2)
	ctx := context.Background()

	// budget of 2 covers the search and one detail, then the run must halt
	summary, err := c.Crawl(ctx)
	require.NoError(t, err)
	require.True(t, summary.BudgetExhausted)
	require.False(t, summary.Done)
	require.Equal(t, 2, summary.RequestsUsed)
	require.Equal(t, 2, fake.requests())
	require.Equal(t, []string{"Taipei", "Kaohsiung"}, summary.Remaining)

	cp, err := c.Checkpoints.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, cp.CompletedLocations)

	// the user already fetched is persisted despite the halt
	stored, err := c.Users.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "a1", stored[0].Login)

	// a later run with enough budget picks up where the first stopped
	config.GithubApi.RequestBudgetPerRun = 50
	summary, err = c.Crawl(ctx)
	require.NoError(t, err)
	require.True(t, summary.Done)
	require.False(t, summary.BudgetExhausted)
	require.Equal(t, []string{"Taipei", "Kaohsiung"}, summary.Completed)

	cp, err = c.Checkpoints.Load(ctx)
	require.NoError(t, err)
	require.True(t, cp.IsCompleted)
	require.Equal(t, 2, cp.TotalUsersFound)
}

func TestCrawlerV1_CompletedLocationsAreNeverRevisited(t *testing.T) {
	t.Parallel()

	fake := &fakeGithub{
		byLocation: map[string][]fakeUser{
			"Kaohsiung": {{id: 9, login: "k9", followers: 500}},
		},
		// any Taipei search would be a regression, make it fail loudly
		failSearches: map[string]bool{"Taipei": true},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newTestCrawler(t, srv.URL, []string{"Taipei", "Kaohsiung"}, 2)
	ctx := context.Background()

	cp, err := c.Checkpoints.Load(ctx)
	require.NoError(t, err)
	cp.MarkLocationCompleted("Taipei", 4)
	require.NoError(t, c.Checkpoints.Save(ctx, cp))

	summary, err := c.Crawl(ctx)
	require.NoError(t, err)
	require.True(t, summary.Done)
	require.Equal(t, []string{"Kaohsiung"}, summary.Completed)
	require.Equal(t, 2, summary.RequestsUsed)
	require.Equal(t, 2, fake.requests())

	cp, err = c.Checkpoints.Load(ctx)
	require.NoError(t, err)
	require.True(t, cp.IsCompleted)
}

func TestCrawlerV1_ThresholdStopsSortedLocationEarly(t *testing.T) {
	t.Parallel()

	fake := &fakeGithub{byLocation: map[string][]fakeUser{
		"Penghu": {
			{id: 11, login: "p1", followers: 500},
			{id: 12, login: "p2", followers: 80},
			{id: 13, login: "p3", followers: 5},
		},
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newTestCrawler(t, srv.URL, []string{"Penghu"}, 50)
	summary, err := c.Crawl(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Done)
	require.Equal(t, 1, summary.NewUsers)

	// search + two details; the first below-threshold candidate proves the
	// rest of the sorted list is below it, so p3 is never fetched
	require.Equal(t, 3, fake.requests())
}

func TestCrawlerV1_UnsortedResultsDisableEarlyStop(t *testing.T) {
	t.Parallel()

	fake := &fakeGithub{byLocation: map[string][]fakeUser{
		"Taichung": {
			{id: 21, login: "u1", followers: 150},
			{id: 22, login: "u2", followers: 200},
			{id: 23, login: "u3", followers: 60},
			{id: 24, login: "u4", followers: 300},
		},
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newTestCrawler(t, srv.URL, []string{"Taichung"}, 50)
	summary, err := c.Crawl(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Done)

	// u2 out of order disables the shortcut, so u3 is skipped instead of
	// ending the location and u4 is still collected
	require.Equal(t, 3, summary.NewUsers)
	require.Equal(t, 5, fake.requests())
}

func TestCrawlerV1_RateLimitHaltsAndPersists(t *testing.T) {
	t.Parallel()

	resetAt := time.Now().Add(600 * time.Second).Unix()
	fake := &fakeGithub{
		byLocation: map[string][]fakeUser{
			"Taipei": {{id: 1, login: "a1", followers: 500}},
		},
		rateLimited: map[string]int64{"a1": resetAt},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newTestCrawler(t, srv.URL, []string{"Taipei"}, 50)
	ctx := context.Background()

	summary, err := c.Crawl(ctx)
	require.NoError(t, err)
	require.True(t, summary.RateLimited)
	require.Equal(t, time.Unix(resetAt, 0), summary.ResetAt)
	require.Equal(t, "resume in 10m0s", summary.WaitHint(time.Now()))

	cp, err := c.Checkpoints.Load(ctx)
	require.NoError(t, err)
	require.True(t, cp.RateLimitEncountered)

	// a re-run before the reset must not touch the platform at all
	before := fake.requests()
	summary, err = c.Crawl(ctx)
	require.NoError(t, err)
	require.True(t, summary.RateLimited)
	require.Equal(t, 0, summary.RequestsUsed)
	require.Equal(t, before, fake.requests())
}

func TestCrawlerV1_FailedLocationDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	fake := &fakeGithub{
		byLocation: map[string][]fakeUser{
			"Keelung": {{id: 31, login: "k1", followers: 120}},
		},
		failSearches: map[string]bool{"Chiayi": true},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newTestCrawler(t, srv.URL, []string{"Chiayi", "Keelung"}, 50)
	summary, err := c.Crawl(context.Background())
	require.NoError(t, err)
	require.Contains(t, summary.Failed, "Chiayi")
	require.Equal(t, []string{"Keelung"}, summary.Completed)
	require.Equal(t, 1, summary.NewUsers)
}

func TestFactoryCrawler(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c, _ := newTestCrawler(t, srv.URL, []string{"Taipei"}, 1)

	got, err := FactoryCrawler("v1", c.Logger, c.Config, c.Caller, c.Checkpoints, c.Users)
	require.NoError(t, err)
	require.IsType(t, &CrawlerV1{}, got)

	_, err = FactoryCrawler("v2", c.Logger, c.Config, c.Caller, c.Checkpoints, c.Users)
	require.Error(t, err)
}
