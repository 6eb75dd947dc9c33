package ui

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/checkpoint"
	"github.com/5566cannotdead/OSSRanking/internal/model"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

// Handler manages HTTP requests for the status endpoints
type Handler struct {
	Logger      log.Logger
	Config      *cfg.Config
	Checkpoints *checkpoint.Store
	Users       *store.UserStore
}

// NewHandler creates a new status handler
func NewHandler(logger log.Logger, config *cfg.Config, checkpoints *checkpoint.Store, users *store.UserStore) (*Handler, error) {
	return &Handler{
		Logger:      logger,
		Config:      config,
		Checkpoints: checkpoints,
		Users:       users,
	}, nil
}

// RegisterRoutes sets up the HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/progress", h.getProgress)
	mux.HandleFunc("/api/ranking", h.getRanking)
	mux.HandleFunc("/healthz", h.getHealth)
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Progress mirrors the checkpoint plus a few derived fields
type Progress struct {
	LastRunTime         string   `json:"lastRunTime"`
	CompletedLocations  []string `json:"completedLocations"`
	RemainingLocations  []string `json:"remainingLocations"`
	TotalUsersFound     int      `json:"totalUsersFound"`
	IsCompleted         bool     `json:"isCompleted"`
	RateLimitActive     bool     `json:"rateLimitActive"`
	RateLimitResetAt    string   `json:"rateLimitResetAt,omitempty"`
	RequestsThisRun     int      `json:"requestsThisRun"`
	RequestBudgetPerRun int      `json:"requestBudgetPerRun"`
}

// getProgress returns the state of the survey as JSON
func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	cp, err := h.Checkpoints.Load(r.Context())
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to load checkpoint: %v", err)
		http.Error(w, "Failed to load progress", http.StatusInternalServerError)
		return
	}

	active, _ := cp.RateLimitActive(time.Now())
	progress := Progress{
		CompletedLocations:  cp.CompletedLocations,
		RemainingLocations:  cp.Remaining(h.Config.Crawl.Locations),
		TotalUsersFound:     cp.TotalUsersFound,
		IsCompleted:         cp.IsCompleted,
		RateLimitActive:     active,
		RequestsThisRun:     cp.RequestsThisRun,
		RequestBudgetPerRun: cp.RequestBudgetPerRun,
	}
	if !cp.LastRunTime.IsZero() {
		progress.LastRunTime = cp.LastRunTime.Format(time.RFC3339)
	}
	if active && cp.RateLimitResetAt != nil {
		progress.RateLimitResetAt = cp.RateLimitResetAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(progress); err != nil {
		h.Logger.Error(r.Context(), "Failed to encode JSON response: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// RankedUser is one row of the ranking response
type RankedUser struct {
	Rank      int     `json:"rank"`
	Login     string  `json:"login"`
	Name      string  `json:"name,omitempty"`
	Location  string  `json:"location,omitempty"`
	Followers int     `json:"followers"`
	Score     float64 `json:"score"`
	Projects  int     `json:"projects"`
}

// getRanking returns the stored users ordered by score with pagination
func (h *Handler) getRanking(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}
	search := strings.ToLower(r.URL.Query().Get("search"))

	users, err := h.Users.Load(r.Context())
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to load users: %v", err)
		http.Error(w, "Failed to load ranking", http.StatusInternalServerError)
		return
	}

	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Score != users[j].Score {
			return users[i].Score > users[j].Score
		}
		return users[i].ID < users[j].ID
	})

	ranked := []RankedUser{}
	for i, u := range users {
		if search != "" && !matchesSearch(&u, search) {
			continue
		}
		ranked = append(ranked, RankedUser{
			Rank:      i + 1,
			Login:     u.Login,
			Name:      u.Name,
			Location:  u.Location,
			Followers: u.Followers,
			Score:     u.Score,
			Projects:  len(u.Projects),
		})
	}

	totalCount := len(ranked)
	offset := (page - 1) * pageSize
	if offset > totalCount {
		offset = totalCount
	}
	end := offset + pageSize
	if end > totalCount {
		end = totalCount
	}

	response := map[string]interface{}{
		"ranking": ranked[offset:end],
		"pagination": map[string]interface{}{
			"page":       page,
			"pageSize":   pageSize,
			"totalCount": totalCount,
			"totalPages": (totalCount + pageSize - 1) / pageSize,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.Logger.Error(r.Context(), "Failed to encode JSON response: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func matchesSearch(u *model.User, search string) bool {
	return strings.Contains(strings.ToLower(u.Login), search) ||
		strings.Contains(strings.ToLower(u.Name), search) ||
		strings.Contains(strings.ToLower(u.Location), search)
}
