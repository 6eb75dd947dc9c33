// Typed mappings of the GitHub API responses the crawler consumes.
// Every payload is decoded once into these shapes; loose traversal of the
// JSON is deliberately avoided so contract drift fails loudly.

package githubapi

import (
	"time"

	"github.com/5566cannotdead/OSSRanking/internal/model"
)

type SearchUsersResponse struct {
	TotalCount        int            `json:"total_count"`
	IncompleteResults bool           `json:"incomplete_results"`
	Items             []UserResponse `json:"items"`
}

type UserResponse struct {
	Login       string    `json:"login"`
	Id          int64     `json:"id"`
	AvatarUrl   string    `json:"avatar_url"`
	HtmlUrl     string    `json:"html_url"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Company     string    `json:"company"`
	Bio         string    `json:"bio"`
	Blog        string    `json:"blog"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	PublicRepos int       `json:"public_repos"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToUser converts the API payload to the persisted record. Search results
// carry zeroed counters, so only detail responses should be converted for
// storage.
func (u *UserResponse) ToUser() *model.User {
	return &model.User{
		ID:          u.Id,
		Login:       u.Login,
		Name:        u.Name,
		Location:    u.Location,
		Company:     u.Company,
		Bio:         u.Bio,
		Blog:        u.Blog,
		AvatarUrl:   u.AvatarUrl,
		HtmlUrl:     u.HtmlUrl,
		Followers:   u.Followers,
		Following:   u.Following,
		PublicRepos: u.PublicRepos,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type Owner struct {
	Login string `json:"login"`
	Id    int64  `json:"id"`
}

type RepoResponse struct {
	Id              int64     `json:"id"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	HtmlUrl         string    `json:"html_url"`
	Owner           Owner     `json:"owner"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	Language        string    `json:"language"`
	Fork            bool      `json:"fork"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type OrgResponse struct {
	Login string `json:"login"`
	Id    int64  `json:"id"`
}

type ContributorResponse struct {
	Login         string `json:"login"`
	Id            int64  `json:"id"`
	Contributions int    `json:"contributions"`
}
