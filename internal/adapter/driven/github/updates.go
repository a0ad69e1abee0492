package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

const maxCommitTitleRunes = 100

// FetchCommits retrieves commits authored since the given time.
func (c *Client) FetchCommits(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error) {
	opts := &gh.CommitsListOptions{
		Since:       since.UTC(),
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	fullName := owner + "/" + repo
	updates := []model.UpdateRecord{}

	for page := 0; page < c.opts.MaxPages; page++ {
		var commits []*gh.RepositoryCommit
		resp, err := c.call(ctx, "list commits "+fullName, func() (*gh.Response, error) {
			var resp *gh.Response
			var err error
			commits, resp, err = c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s (page %d): %w", fullName, opts.Page, err)
		}

		logRateLimit(resp, fullName+"/commits", opts.Page, len(commits))

		for _, rc := range commits {
			updates = append(updates, mapCommit(rc, owner, repo))
		}

		if resp.NextPage == 0 {
			break
		}
		c.warnPageCap(fullName, page)
		opts.Page = resp.NextPage
	}

	return updates, nil
}

// FetchIssues retrieves issues updated since the given time. Pull requests,
// which the issues endpoint also returns, are skipped.
func (c *Client) FetchIssues(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Since:       since.UTC(),
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	fullName := owner + "/" + repo
	updates := []model.UpdateRecord{}

	for page := 0; page < c.opts.MaxPages; page++ {
		var issues []*gh.Issue
		resp, err := c.call(ctx, "list issues "+fullName, func() (*gh.Response, error) {
			var resp *gh.Response
			var err error
			issues, resp, err = c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing issues for %s (page %d): %w", fullName, opts.ListOptions.Page, err)
		}

		logRateLimit(resp, fullName+"/issues", opts.ListOptions.Page, len(issues))

		for _, is := range issues {
			if is.IsPullRequest() {
				continue
			}
			updates = append(updates, mapIssue(is, owner, repo))
		}

		if resp.NextPage == 0 {
			break
		}
		c.warnPageCap(fullName, page)
		opts.ListOptions.Page = resp.NextPage
	}

	return updates, nil
}

// FetchPullRequests retrieves pull requests updated since the given time.
// Results are requested newest-updated first, so pagination stops once a
// page ends with an item older than since. Items older than since are
// dropped individually, so a mis-ordered page can only cost an extra page,
// never a newer record on the current one.
func (c *Client) FetchPullRequests(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error) {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	fullName := owner + "/" + repo
	since = since.UTC()
	updates := []model.UpdateRecord{}

	for page := 0; page < c.opts.MaxPages; page++ {
		var prs []*gh.PullRequest
		resp, err := c.call(ctx, "list pull requests "+fullName, func() (*gh.Response, error) {
			var resp *gh.Response
			var err error
			prs, resp, err = c.gh.PullRequests.List(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s (page %d): %w", fullName, opts.Page, err)
		}

		logRateLimit(resp, fullName+"/pulls", opts.Page, len(prs))

		for _, pr := range prs {
			if pr.GetUpdatedAt().UTC().Before(since) {
				continue
			}
			updates = append(updates, mapPullRequest(pr, owner, repo))
		}

		if len(prs) == 0 || prs[len(prs)-1].GetUpdatedAt().UTC().Before(since) {
			break
		}
		if resp.NextPage == 0 {
			break
		}
		c.warnPageCap(fullName, page)
		opts.Page = resp.NextPage
	}

	return updates, nil
}

// FetchReleases retrieves releases created since the given time. The
// releases endpoint returns newest first; pagination stops the same way as
// FetchPullRequests.
func (c *Client) FetchReleases(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error) {
	opts := &gh.ListOptions{PerPage: perPage}
	fullName := owner + "/" + repo
	since = since.UTC()
	updates := []model.UpdateRecord{}

	for page := 0; page < c.opts.MaxPages; page++ {
		var releases []*gh.RepositoryRelease
		resp, err := c.call(ctx, "list releases "+fullName, func() (*gh.Response, error) {
			var resp *gh.Response
			var err error
			releases, resp, err = c.gh.Repositories.ListReleases(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing releases for %s (page %d): %w", fullName, opts.Page, err)
		}

		logRateLimit(resp, fullName+"/releases", opts.Page, len(releases))

		for _, rel := range releases {
			if rel.GetCreatedAt().UTC().Before(since) {
				continue
			}
			updates = append(updates, mapRelease(rel, owner, repo))
		}

		if len(releases) == 0 || releases[len(releases)-1].GetCreatedAt().UTC().Before(since) {
			break
		}
		if resp.NextPage == 0 {
			break
		}
		c.warnPageCap(fullName, page)
		opts.Page = resp.NextPage
	}

	return updates, nil
}

// warnPageCap logs when the last permitted page still links to a next one.
// Records beyond the cap are not fetched.
func (c *Client) warnPageCap(fullName string, page int) {
	if page == c.opts.MaxPages-1 {
		slog.Warn("github pagination cap reached, later pages not fetched",
			"repo", fullName,
			"max_pages", c.opts.MaxPages,
		)
	}
}

// mapCommit converts a go-github RepositoryCommit to an UpdateRecord.
// The title is the first message line, truncated.
func mapCommit(rc *gh.RepositoryCommit, owner, repo string) model.UpdateRecord {
	commit := rc.GetCommit()
	message := commit.GetMessage()

	author := commit.GetAuthor().GetName()
	if author == "" {
		author = rc.GetAuthor().GetLogin()
	}

	return model.UpdateRecord{
		Owner:     owner,
		Repo:      repo,
		Kind:      model.KindCommit,
		Title:     commitTitle(message),
		Body:      message,
		URL:       rc.GetHTMLURL(),
		Author:    author,
		CreatedAt: commit.GetAuthor().GetDate().UTC(),
		SHA:       rc.GetSHA(),
	}
}

// mapIssue converts a go-github Issue to an UpdateRecord.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapIssue(is *gh.Issue, owner, repo string) model.UpdateRecord {
	labels := make([]string, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, l.GetName())
	}

	return model.UpdateRecord{
		Owner:     owner,
		Repo:      repo,
		Kind:      model.KindIssue,
		Title:     is.GetTitle(),
		Body:      is.GetBody(),
		URL:       is.GetHTMLURL(),
		Author:    is.GetUser().GetLogin(),
		CreatedAt: is.GetCreatedAt().UTC(),
		Number:    is.GetNumber(),
		State:     is.GetState(),
		Labels:    labels,
	}
}

func mapPullRequest(pr *gh.PullRequest, owner, repo string) model.UpdateRecord {
	return model.UpdateRecord{
		Owner:      owner,
		Repo:       repo,
		Kind:       model.KindPullRequest,
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		URL:        pr.GetHTMLURL(),
		Author:     pr.GetUser().GetLogin(),
		CreatedAt:  pr.GetCreatedAt().UTC(),
		Number:     pr.GetNumber(),
		State:      pr.GetState(),
		Merged:     !pr.GetMergedAt().IsZero(),
		Draft:      pr.GetDraft(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadBranch: pr.GetHead().GetRef(),
	}
}

// mapRelease converts a go-github RepositoryRelease to an UpdateRecord.
// Unnamed releases are titled by their tag.
func mapRelease(rel *gh.RepositoryRelease, owner, repo string) model.UpdateRecord {
	title := rel.GetName()
	if title == "" {
		title = rel.GetTagName()
	}

	return model.UpdateRecord{
		Owner:      owner,
		Repo:       repo,
		Kind:       model.KindRelease,
		Title:      title,
		Body:       rel.GetBody(),
		URL:        rel.GetHTMLURL(),
		Author:     rel.GetAuthor().GetLogin(),
		CreatedAt:  rel.GetCreatedAt().UTC(),
		TagName:    rel.GetTagName(),
		Draft:      rel.GetDraft(),
		Prerelease: rel.GetPrerelease(),
	}
}

func commitTitle(message string) string {
	title, _, _ := strings.Cut(message, "\n")
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= maxCommitTitleRunes {
		return title
	}
	return string([]rune(title)[:maxCommitTitleRunes])
}
