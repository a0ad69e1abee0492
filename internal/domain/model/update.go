package model

import (
	"cmp"
	"time"
)

// UpdateRecord is one observed change in an upstream repository. Records are
// immutable once produced and are passed by value.
type UpdateRecord struct {
	Owner     string
	Repo      string
	Kind      Kind
	Title     string
	Body      string
	URL       string
	Author    string
	CreatedAt time.Time // Always UTC.

	// Kind-specific metadata. Fields irrelevant to Kind are zero.
	SHA        string   // commit
	Number     int      // issue, pull_request
	State      string   // issue, pull_request
	Labels     []string // issue
	Merged     bool     // pull_request
	Draft      bool     // pull_request, release
	BaseBranch string   // pull_request
	HeadBranch string   // pull_request
	TagName    string   // release
	Prerelease bool     // release
}

// FullName returns "owner/repo".
func (u UpdateRecord) FullName() string {
	return u.Owner + "/" + u.Repo
}

// CompareUpdates orders records newest first; ties are broken by owner, repo,
// kind and URL in ascending lexical order so that merged output is
// deterministic.
func CompareUpdates(a, b UpdateRecord) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Or(
		cmp.Compare(a.Owner, b.Owner),
		cmp.Compare(a.Repo, b.Repo),
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.URL, b.URL),
	)
}

// FetchOutcome is the per-subscription result of one orchestration pass.
// Err is nil on success, in which case Updates holds the (possibly empty)
// filtered record list; on failure Updates is nil.
type FetchOutcome struct {
	SubscriptionID string
	Owner          string
	Repo           string
	Updates        []UpdateRecord
	Err            error
}

// Succeeded reports whether the subscription's fetch completed without error.
func (o FetchOutcome) Succeeded() bool {
	return o.Err == nil
}
