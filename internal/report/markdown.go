// Package report renders the ranked developer list as a markdown document.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/model"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

// shown per developer in the ranking table
const projectsPerColumn = 3

type Writer struct {
	Logger log.Logger
	Config *cfg.Config
}

func NewWriter(logger log.Logger, config *cfg.Config) (*Writer, error) {
	return &Writer{Logger: logger, Config: config}, nil
}

// Write renders the ranking for the given users and replaces the report file
// atomically. Users are ordered by score descending, ID ascending on ties.
func (w *Writer) Write(ctx context.Context, users []model.User) error {
	ranked := make([]model.User, len(users))
	copy(ranked, users)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	var sb strings.Builder
	md := markdown.NewMarkdown(&sb)

	md.H1("Taiwan GitHub Developer Ranking")
	md.PlainText("")
	md.PlainTextf("Ranked by score = followers + stars + forks across top projects. Generated %s.",
		time.Now().UTC().Format("2006-01-02 15:04 MST"))
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Developers ranked", strconv.Itoa(len(ranked))},
			{"Locations surveyed", strconv.Itoa(len(w.Config.Crawl.Locations))},
			{"Follower threshold", strconv.Itoa(w.Config.Crawl.MinFollowers)},
		},
	})
	md.PlainText("")

	md.H2("Ranking")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Rank", "Developer", "Score", "Followers", "Personal Projects", "Contributed Projects"},
		Rows:   w.rankingRows(ranked),
	})
	md.PlainText("")

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Scores count each developer's strongest personal repositories and the organization repositories where they rank among the top contributors.*")

	if err := md.Build(); err != nil {
		return fmt.Errorf("cannot render report: %w", err)
	}

	if err := w.save(sb.String()); err != nil {
		return err
	}
	w.Logger.Info(ctx, "Report with %d developers written to %s", len(ranked), w.Config.Storage.ReportFile)
	return nil
}

func (w *Writer) rankingRows(ranked []model.User) [][]string {
	rows := make([][]string, 0, len(ranked))
	for i, u := range ranked {
		name := u.Login
		if u.Name != "" {
			name = fmt.Sprintf("%s (%s)", u.Name, u.Login)
		}
		developer := name
		if u.HtmlUrl != "" {
			developer = fmt.Sprintf("[%s](%s)", name, u.HtmlUrl)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			developer,
			strconv.FormatFloat(u.Score, 'f', 0, 64),
			strconv.Itoa(u.Followers),
			projectColumn(u.Projects, true),
			projectColumn(u.Projects, false),
		})
	}
	return rows
}

// projectColumn lists a developer's strongest projects of one kind.
func projectColumn(projects []model.Project, owned bool) string {
	parts := []string{}
	for _, p := range projects {
		if p.Owned != owned {
			continue
		}
		label := fmt.Sprintf("%s (⭐%d)", p.FullName, p.Stars)
		if p.HtmlUrl != "" {
			label = fmt.Sprintf("[%s](%s) (⭐%d)", p.FullName, p.HtmlUrl, p.Stars)
		}
		parts = append(parts, label)
		if len(parts) == projectsPerColumn {
			break
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "<br>")
}

// save replaces the report file through a rename so readers never observe a
// partially written document.
func (w *Writer) save(content string) error {
	path := w.Config.Storage.ReportFile
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temp report file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cannot write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cannot close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cannot replace report file: %w", err)
	}
	return nil
}
