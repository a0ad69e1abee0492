package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// Upstream error taxonomy. GitHubClient implementations wrap these so callers
// can branch with errors.Is.
var (
	// ErrNotFound indicates the repository or resource is missing or inaccessible.
	ErrNotFound = errors.New("upstream resource not found")

	// ErrUnauthorized indicates the credential was rejected. It is fatal for a
	// whole fetch pass.
	ErrUnauthorized = errors.New("upstream credential rejected")

	// ErrForbidden indicates genuine access denial (not quota exhaustion).
	ErrForbidden = errors.New("upstream access forbidden")

	// ErrQuotaExhausted indicates the upstream rate limit was still exhausted
	// after the client's wait-and-retry budget was spent.
	ErrQuotaExhausted = errors.New("upstream rate limit exhausted")

	// ErrTimeout indicates a transport timeout.
	ErrTimeout = errors.New("upstream request timed out")

	// ErrUpstream indicates any other non-2xx response.
	ErrUpstream = errors.New("unexpected upstream response")
)

// UpdateFetcher fetches one kind of repository activity created or updated
// at or after since. Returned records carry UTC timestamps.
type UpdateFetcher interface {
	FetchCommits(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error)
	FetchIssues(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error)
	FetchPullRequests(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error)
	FetchReleases(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error)
}

// GitHubClient defines the driven port for the rate-limited GitHub API client.
type GitHubClient interface {
	UpdateFetcher

	// ValidateRepository returns nil if owner/repo exists and is readable.
	ValidateRepository(ctx context.Context, owner, repo string) error
	// RateLimitStatus returns the upstream's view of the core quota.
	RateLimitStatus(ctx context.Context) (*model.RateLimitStatus, error)
	// BudgetUsage returns the client-side hourly call budget.
	BudgetUsage() model.BudgetUsage
}
