package application

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// topContributors caps the contributor table of a report.
const topContributors = 5

var (
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	htmlSanitizer = bluemonday.UGCPolicy()

	mdEscaper = strings.NewReplacer(
		`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`,
		"[", `\[`, "]", `\]`, "<", `\<`, ">", `\>`, "|", `\|`,
	)
)

var kindHeadings = map[model.Kind]string{
	model.KindCommit:      "Commits",
	model.KindIssue:       "Issues",
	model.KindPullRequest: "Pull requests",
	model.KindRelease:     "Releases",
}

// ReportService renders merged scan output into stored reports.
type ReportService struct {
	store driven.ReportStore
}

// NewReportService creates a ReportService backed by store.
func NewReportService(store driven.ReportStore) *ReportService {
	return &ReportService{store: store}
}

// Generate builds a report from updates, persists it and returns it with its
// assigned ID.
func (s *ReportService) Generate(ctx context.Context, period model.Period, updates []model.UpdateRecord, at time.Time) (model.Report, error) {
	report := BuildReport(period, updates, at)

	id, err := s.store.Save(ctx, report)
	if err != nil {
		return model.Report{}, fmt.Errorf("save %s report: %w", period, err)
	}
	report.ID = id

	slog.Info("report generated",
		"id", id,
		"period", period,
		"updates", report.UpdateCount,
		"repositories", len(report.ByRepo),
	)

	return report, nil
}

// Recent returns up to limit stored reports, newest first.
func (s *ReportService) Recent(ctx context.Context, limit int) ([]model.Report, error) {
	reports, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent reports: %w", err)
	}
	return reports, nil
}

// BuildReport summarizes and renders updates without persisting anything.
func BuildReport(period model.Period, updates []model.UpdateRecord, at time.Time) model.Report {
	sorted := slices.Clone(updates)
	slices.SortStableFunc(sorted, model.CompareUpdates)

	report := model.Report{
		Period:      period,
		GeneratedAt: at.UTC(),
		Updates:     sorted,
		UpdateCount: len(sorted),
		ByKind:      make(map[model.Kind]int),
		ByRepo:      make(map[string]int),
	}
	for _, u := range sorted {
		report.ByKind[u.Kind]++
		report.ByRepo[u.FullName()]++
	}

	report.Markdown = renderReportMarkdown(report)
	report.HTML = RenderMarkdown(report.Markdown)

	return report
}

// RenderMarkdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

func renderReportMarkdown(r model.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Title())

	if r.UpdateCount == 0 {
		b.WriteString("No new activity in the watched repositories.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d updates across %d repositories.\n\n", r.UpdateCount, len(r.ByRepo))

	b.WriteString("| Kind | Count |\n|---|---:|\n")
	for _, k := range model.ConcreteKinds {
		if n := r.ByKind[k]; n > 0 {
			fmt.Fprintf(&b, "| %s | %d |\n", kindHeadings[k], n)
		}
	}
	b.WriteString("\n")

	if top := contributors(r.Updates); len(top) > 0 {
		b.WriteString("**Most active:** ")
		for i, c := range top {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%d)", mdEscaper.Replace(c.name), c.count)
		}
		b.WriteString("\n\n")
	}

	repos := make([]string, 0, len(r.ByRepo))
	for name := range r.ByRepo {
		repos = append(repos, name)
	}
	slices.Sort(repos)

	for _, name := range repos {
		fmt.Fprintf(&b, "## %s\n\n", mdEscaper.Replace(name))
		for _, k := range model.ConcreteKinds {
			var items []model.UpdateRecord
			for _, u := range r.Updates {
				if u.FullName() == name && u.Kind == k {
					items = append(items, u)
				}
			}
			if len(items) == 0 {
				continue
			}

			fmt.Fprintf(&b, "### %s\n\n", kindHeadings[k])
			for _, u := range items {
				b.WriteString(markdownItem(u))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func markdownItem(u model.UpdateRecord) string {
	title := mdEscaper.Replace(u.Title)
	if title == "" {
		title = "(untitled)"
	}
	if u.URL != "" {
		title = "[" + title + "](" + u.URL + ")"
	}

	var ref string
	switch {
	case u.Kind == model.KindCommit && len(u.SHA) >= 7:
		ref = " `" + u.SHA[:7] + "`"
	case u.Number > 0:
		ref = fmt.Sprintf(" #%d", u.Number)
	case u.TagName != "":
		ref = " `" + u.TagName + "`"
	}

	author := ""
	if u.Author != "" {
		author = " by " + mdEscaper.Replace(u.Author)
	}

	return fmt.Sprintf("- %s%s%s, %s\n", title, ref, author, u.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
}

type contributor struct {
	name  string
	count int
}

func contributors(updates []model.UpdateRecord) []contributor {
	counts := make(map[string]int)
	for _, u := range updates {
		if u.Author != "" {
			counts[u.Author]++
		}
	}

	out := make([]contributor, 0, len(counts))
	for name, n := range counts {
		out = append(out, contributor{name: name, count: n})
	}
	slices.SortFunc(out, func(a, b contributor) int {
		return cmp.Or(cmp.Compare(b.count, a.count), cmp.Compare(a.name, b.name))
	})

	if len(out) > topContributors {
		out = out[:topContributors]
	}
	return out
}
