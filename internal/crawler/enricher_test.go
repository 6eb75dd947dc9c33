package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/5566cannotdead/OSSRanking/cfg"
	githubapi "github.com/5566cannotdead/OSSRanking/internal/github_api"
	"github.com/5566cannotdead/OSSRanking/internal/model"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

// enrichmentAPI serves the repository, organization and contributor endpoints
// for a single known user.
func enrichmentAPI() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/alice/repos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":101,"name":"proj1","full_name":"alice/proj1","stargazers_count":50,"forks_count":10,"fork":false},
			{"id":102,"name":"someones-fork","full_name":"alice/someones-fork","stargazers_count":5,"forks_count":0,"fork":true}
		]`)
	})
	mux.HandleFunc("/users/alice/orgs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"login":"org1","id":900}]`)
	})
	mux.HandleFunc("/orgs/org1/repos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":201,"name":"bigrepo","full_name":"org1/bigrepo","stargazers_count":200,"forks_count":30,"fork":false},
			{"id":202,"name":"hugerepo","full_name":"org1/hugerepo","stargazers_count":999,"forks_count":99,"fork":false}
		]`)
	})
	mux.HandleFunc("/repos/org1/bigrepo/contributors", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"login":"bob","id":2,"contributions":500},
			{"login":"alice","id":1,"contributions":400},
			{"login":"carol","id":3,"contributions":10}
		]`)
	})
	mux.HandleFunc("/repos/org1/hugerepo/contributors", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"The history or contributor list is too large to list contributors for this repository via the API."}`)
	})
	return mux
}

func newTestEnricher(t *testing.T, apiUrl string, budget int) *Enricher {
	t.Helper()

	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	config, err := loader.Load()
	require.NoError(t, err)

	config.Storage.UsersFile = filepath.Join(t.TempDir(), "Users.json")
	config.GithubApi.ApiUrl = apiUrl
	config.GithubApi.RequestBudgetPerRun = budget
	config.GithubApi.RequestsPerSecond = 1000
	config.GithubApi.ThrottleDelayMs = 1
	config.GithubApi.MaxRetries = 1

	logger, err := log.NewCslLogger()
	require.NoError(t, err)
	caller := githubapi.NewCaller(logger, config)
	users, err := store.NewUserStore(logger, config)
	require.NoError(t, err)

	e, err := NewEnricher(logger, config, caller, users)
	require.NoError(t, err)
	return e
}

func TestEnricher_BuildsProjectsAndScore(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(enrichmentAPI())
	defer srv.Close()

	e := newTestEnricher(t, srv.URL, 50)
	ctx := context.Background()
	require.NoError(t, e.Users.Save(ctx, []model.User{
		{ID: 1, Login: "alice", Followers: 100},
	}))

	summary, err := e.Enrich(ctx)
	require.NoError(t, err)
	require.True(t, summary.Done)
	require.Equal(t, []string{"alice"}, summary.Completed)

	users, err := e.Users.Load(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	alice := users[0]

	// the fork is dropped and the too-large repo is skipped, not fatal
	require.Len(t, alice.Projects, 2)

	var owned, contributed *model.Project
	for i := range alice.Projects {
		if alice.Projects[i].Owned {
			owned = &alice.Projects[i]
		} else {
			contributed = &alice.Projects[i]
		}
	}
	require.NotNil(t, owned)
	require.Equal(t, "alice/proj1", owned.FullName)
	require.NotNil(t, contributed)
	require.Equal(t, "org1/bigrepo", contributed.FullName)
	require.Equal(t, "org1", contributed.Organization)
	require.Equal(t, 2, contributed.ContributorRank)

	require.Equal(t, 250, alice.TotalStars)
	require.Equal(t, 40, alice.TotalForks)
	require.Equal(t, float64(100+250+40), alice.Score)
}

func TestEnricher_NotATopContributor(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/users/dave/repos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/users/dave/orgs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"login":"org1","id":900}]`)
	})
	mux.HandleFunc("/orgs/org1/repos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":201,"name":"bigrepo","full_name":"org1/bigrepo","stargazers_count":200,"forks_count":30,"fork":false}]`)
	})
	mux.HandleFunc("/repos/org1/bigrepo/contributors", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"login":"bob","id":2,"contributions":500}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestEnricher(t, srv.URL, 50)
	ctx := context.Background()
	require.NoError(t, e.Users.Save(ctx, []model.User{
		{ID: 4, Login: "dave", Followers: 120},
	}))

	summary, err := e.Enrich(ctx)
	require.NoError(t, err)
	require.True(t, summary.Done)

	users, err := e.Users.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, users[0].Projects)
	require.Equal(t, float64(120), users[0].Score)
}

func TestEnricher_BudgetHaltKeepsPartialResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(enrichmentAPI())
	defer srv.Close()

	// two calls cover the owned repos and the org listing only
	e := newTestEnricher(t, srv.URL, 2)
	ctx := context.Background()
	require.NoError(t, e.Users.Save(ctx, []model.User{
		{ID: 1, Login: "alice", Followers: 100},
	}))

	summary, err := e.Enrich(ctx)
	require.NoError(t, err)
	require.True(t, summary.BudgetExhausted)
	require.False(t, summary.Done)
	require.Equal(t, 2, summary.RequestsUsed)

	// alice stays un-enriched rather than half-scored
	users, err := e.Users.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, users[0].Projects)
	require.Zero(t, users[0].Score)
}
