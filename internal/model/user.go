// Package model defines the persisted shapes of the crawl: the User record
// collected from the GitHub API and the Developer archive row for MySQL.
package model

import "time"

// Project is one repository associated with a user, either owned or
// contributed through an organization. A project list is replaced wholesale
// on re-enrichment, never merged field by field.
type Project struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description,omitempty"`
	HtmlUrl         string    `json:"html_url"`
	Stars           int       `json:"stargazers_count"`
	Forks           int       `json:"forks_count"`
	Language        string    `json:"language,omitempty"`
	Owned           bool      `json:"owned"`
	Organization    string    `json:"organization,omitempty"`
	ContributorRank int       `json:"contributor_rank,omitempty"` // 1-based, 0 when unknown
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// User is a discovered developer or organization account. Identity is the
// numeric GitHub ID; the login is a mutable display handle.
type User struct {
	ID          int64     `json:"id"`
	Login       string    `json:"login"`
	Name        string    `json:"name,omitempty"`
	Location    string    `json:"location,omitempty"`
	Company     string    `json:"company,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Blog        string    `json:"blog,omitempty"`
	AvatarUrl   string    `json:"avatar_url,omitempty"`
	HtmlUrl     string    `json:"html_url,omitempty"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	PublicRepos int       `json:"public_repos"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastFetched time.Time `json:"last_fetched"`

	// Filled by the enrichment pass
	Projects   []Project `json:"projects,omitempty"`
	TotalStars int       `json:"total_stars"`
	TotalForks int       `json:"total_forks"`
	Score      float64   `json:"score"`
}

// AttributesDiffer reports whether any of the attributes that matter for the
// merge differ between the stored record and a fresh fetch. A pure
// LastFetched refresh is not a change.
func (u *User) AttributesDiffer(other *User) bool {
	return u.Followers != other.Followers ||
		u.Following != other.Following ||
		u.PublicRepos != other.PublicRepos ||
		u.Location != other.Location ||
		u.Company != other.Company ||
		u.Bio != other.Bio ||
		u.Blog != other.Blog ||
		u.Name != other.Name
}
