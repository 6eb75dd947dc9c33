// Package checkpoint persists crawl progress between invocations. The
// checkpoint is the single source of truth for which locations are done,
// which failed, and whether a platform rate limit is still in force, so a
// run always resumes exactly where the previous one stopped.
package checkpoint

import "time"

// Checkpoint is one durable progress record per crawl lineage. Completion is
// tracked per whole location; partial per-location progress is deliberately
// not recorded.
type Checkpoint struct {
	LastRunTime          time.Time  `json:"lastRunTime"`
	CompletedLocations   []string   `json:"completedLocations"`
	FailedLocations      []string   `json:"failedLocations"`
	TotalUsersFound      int        `json:"totalUsersFound"`
	IsCompleted          bool       `json:"isCompleted"`
	LastError            string     `json:"lastError,omitempty"`
	RateLimitEncountered bool       `json:"rateLimitEncountered"`
	RateLimitResetAt     *time.Time `json:"rateLimitResetAt,omitempty"`
	RequestsThisRun      int        `json:"requestsThisRun"`
	RequestBudgetPerRun  int        `json:"requestBudgetPerRun"`
}

// NewCheckpoint returns the empty first-run state.
func NewCheckpoint(budget int) *Checkpoint {
	return &Checkpoint{
		LastRunTime:         time.Now().UTC(),
		CompletedLocations:  []string{},
		FailedLocations:     []string{},
		RequestBudgetPerRun: budget,
	}
}

// IsLocationCompleted reports whether a location has been fully processed.
func (c *Checkpoint) IsLocationCompleted(location string) bool {
	return contains(c.CompletedLocations, location)
}

// Remaining returns the locations not yet completed, preserving the caller's
// canonical order so progress stays deterministic run to run.
func (c *Checkpoint) Remaining(allLocations []string) []string {
	remaining := make([]string, 0, len(allLocations))
	for _, loc := range allLocations {
		if !c.IsLocationCompleted(loc) {
			remaining = append(remaining, loc)
		}
	}
	return remaining
}

// MarkLocationCompleted records a fully processed location and clears any
// earlier failure for it.
func (c *Checkpoint) MarkLocationCompleted(location string, usersFound int) {
	if c.IsLocationCompleted(location) {
		return
	}
	c.CompletedLocations = append(c.CompletedLocations, location)
	c.FailedLocations = remove(c.FailedLocations, location)
	c.TotalUsersFound += usersFound
}

// MarkLocationFailed records a non-fatal per-location failure.
func (c *Checkpoint) MarkLocationFailed(location string, errMsg string) {
	if !contains(c.FailedLocations, location) {
		c.FailedLocations = append(c.FailedLocations, location)
	}
	c.LastError = location + ": " + errMsg
}

// MarkRateLimited records a platform rate limit and the time it lifts.
func (c *Checkpoint) MarkRateLimited(resetAt time.Time) {
	c.RateLimitEncountered = true
	c.RateLimitResetAt = &resetAt
	c.LastError = "github rate limit exceeded"
}

// ClearRateLimit resets the rate-limit state once the window has passed.
func (c *Checkpoint) ClearRateLimit() {
	c.RateLimitEncountered = false
	c.RateLimitResetAt = nil
}

// RateLimitActive reports whether calls are still forbidden at now, and for
// how much longer. RateLimitResetAt is only meaningful while the flag is set.
func (c *Checkpoint) RateLimitActive(now time.Time) (bool, time.Duration) {
	if !c.RateLimitEncountered || c.RateLimitResetAt == nil {
		return false, 0
	}
	if now.Before(*c.RateLimitResetAt) {
		return true, c.RateLimitResetAt.Sub(now)
	}
	return false, 0
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func remove(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
