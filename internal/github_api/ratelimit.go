package githubapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrContributorsTooLarge marks the GitHub refusal to list contributors for
// very large repositories. Callers skip that one sub-resource; it is neither
// a rate limit nor a failure of the surrounding work item.
var ErrContributorsTooLarge = errors.New("contributor list too large to fetch")

// RateLimitError is returned when GitHub rejects a call for quota reasons.
// ResetAt is the wall-clock time after which calls may resume.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github rate limit hit, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// AsRateLimit unwraps err into a RateLimitError if it is one.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// classifyResponse decides what a non-2xx GitHub response means. The
// contributor special case is checked before the rate-limit headers because
// GitHub also reports it with a 403.
func (c *Caller) classifyResponse(resp *http.Response, body []byte) error {
	content := string(body)

	if strings.Contains(content, "too large to list contributors") ||
		strings.Contains(content, "contributor list is too large") {
		return ErrContributorsTooLarge
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		remaining := resp.Header.Get("X-RateLimit-Remaining")
		if remaining == "0" || strings.Contains(strings.ToLower(content), "rate limit") {
			return &RateLimitError{ResetAt: c.resetTime(resp)}
		}
	}

	return fmt.Errorf("unexpected response: %s", resp.Status)
}

// resetTime parses X-RateLimit-Reset (Unix seconds). When the header is
// absent or malformed the configured fallback window is used instead of
// retrying blind.
func (c *Caller) resetTime(resp *http.Response) time.Time {
	resetStr := resp.Header.Get("X-RateLimit-Reset")
	resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return time.Now().Add(time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute)
	}

	resetAt := time.Unix(resetUnix, 0)
	if resetAt.Before(time.Now()) {
		return time.Now().Add(time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute)
	}
	return resetAt
}
