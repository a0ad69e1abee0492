package github_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/gitsentinel/internal/adapter/driven/github"
	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler, opts ghAdapter.Options) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/", "test-token", opts)
	require.NoError(t, err)

	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type userJSON struct {
	Login string `json:"login"`
}

type refJSON struct {
	Ref string `json:"ref"`
}

type lblJSON struct {
	Name string `json:"name"`
}

type prJSON struct {
	Number   int      `json:"number"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	State    string   `json:"state"`
	Draft    bool     `json:"draft"`
	HTMLURL  string   `json:"html_url"`
	User     userJSON `json:"user"`
	Head     refJSON  `json:"head"`
	Base     refJSON  `json:"base"`
	Created  string   `json:"created_at"`
	Updated  string   `json:"updated_at"`
	MergedAt *string  `json:"merged_at,omitempty"`
}

type releaseJSON struct {
	TagName    string   `json:"tag_name"`
	Name       string   `json:"name"`
	Body       string   `json:"body"`
	Draft      bool     `json:"draft"`
	Prerelease bool     `json:"prerelease"`
	HTMLURL    string   `json:"html_url"`
	Author     userJSON `json:"author"`
	Created    string   `json:"created_at"`
}

var since = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestFetchCommits_MapsFields(t *testing.T) {
	longLine := strings.Repeat("x", 120)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/commits", r.URL.Path)
		assert.Equal(t, "2026-03-01T00:00:00Z", r.URL.Query().Get("since"))

		writeJSON(w, []map[string]any{
			{
				"sha":      "abc123",
				"html_url": "https://github.com/owner/repo/commit/abc123",
				"commit": map[string]any{
					"message": "Fix the parser\n\nLonger description.",
					"author":  map[string]any{"name": "Alice", "date": "2026-03-02T10:00:00+02:00"},
				},
			},
			{
				"sha":    "def456",
				"author": map[string]any{"login": "bob"},
				"commit": map[string]any{
					"message": longLine,
					"author":  map[string]any{"date": "2026-03-03T00:00:00Z"},
				},
			},
		})
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	result, err := client.FetchCommits(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, model.KindCommit, result[0].Kind)
	assert.Equal(t, "Fix the parser", result[0].Title)
	assert.Equal(t, "Fix the parser\n\nLonger description.", result[0].Body)
	assert.Equal(t, "Alice", result[0].Author)
	assert.Equal(t, "abc123", result[0].SHA)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), result[0].CreatedAt)
	assert.Equal(t, time.UTC, result[0].CreatedAt.Location())

	assert.Equal(t, "bob", result[1].Author)
	assert.Len(t, []rune(result[1].Title), 100)
}

func TestFetchIssues_SkipsPullRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))

		writeJSON(w, []map[string]any{
			{
				"number":     7,
				"title":      "Crash on start",
				"body":       "stack trace",
				"state":      "open",
				"html_url":   "https://github.com/owner/repo/issues/7",
				"user":       map[string]any{"login": "carol"},
				"labels":     []lblJSON{{Name: "bug"}},
				"created_at": "2026-03-02T00:00:00Z",
				"updated_at": "2026-03-02T01:00:00Z",
			},
			{
				"number":       8,
				"title":        "A pull request",
				"pull_request": map[string]any{"url": "https://api.github.com/repos/owner/repo/pulls/8"},
				"created_at":   "2026-03-02T00:00:00Z",
			},
		})
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	result, err := client.FetchIssues(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, model.KindIssue, result[0].Kind)
	assert.Equal(t, 7, result[0].Number)
	assert.Equal(t, "open", result[0].State)
	assert.Equal(t, []string{"bug"}, result[0].Labels)
	assert.Equal(t, "carol", result[0].Author)
}

func TestFetchPullRequests_Pagination(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "" || page == "1" {
			// Page 1: include Link header pointing to page 2
			w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
			writeJSON(w, []prJSON{
				{Number: 1, Title: "PR 1", User: userJSON{Login: "alice"}, Created: "2026-03-05T00:00:00Z", Updated: "2026-03-06T00:00:00Z"},
			})
			return
		}
		// Page 2: no Link header (last page)
		writeJSON(w, []prJSON{
			{Number: 2, Title: "PR 2", User: userJSON{Login: "bob"}, Created: "2026-03-04T00:00:00Z", Updated: "2026-03-05T00:00:00Z"},
		})
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	result, err := client.FetchPullRequests(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 1, result[0].Number)
	assert.Equal(t, 2, result[1].Number)
}

func TestFetchPullRequests_StopsAtSinceBoundary(t *testing.T) {
	var page2Calls atomic.Int32
	merged := "2026-03-04T00:00:00Z"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("direction"))

		if r.URL.Query().Get("page") == "2" {
			page2Calls.Add(1)
			writeJSON(w, []prJSON{})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
		writeJSON(w, []prJSON{
			{
				Number: 10, Title: "Fresh", State: "closed", Draft: true,
				HTMLURL: "https://github.com/owner/repo/pull/10",
				User:    userJSON{Login: "alice"},
				Head:    refJSON{Ref: "feature"}, Base: refJSON{Ref: "main"},
				Created: "2026-02-20T00:00:00Z", Updated: "2026-03-04T00:00:00Z",
				MergedAt: &merged,
			},
			{Number: 9, Title: "Stale", Created: "2026-01-01T00:00:00Z", Updated: "2026-02-01T00:00:00Z"},
		})
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	result, err := client.FetchPullRequests(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, int32(0), page2Calls.Load())

	pr := result[0]
	assert.Equal(t, 10, pr.Number)
	assert.True(t, pr.Merged)
	assert.True(t, pr.Draft)
	assert.Equal(t, "feature", pr.HeadBranch)
	assert.Equal(t, "main", pr.BaseBranch)
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), pr.CreatedAt)
}

func TestFetchPullRequests_KeepsNewerItemAfterOlderOne(t *testing.T) {
	// Mis-ordered page: an older item precedes a newer one.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []prJSON{
			{Number: 1, Created: "2026-01-01T00:00:00Z", Updated: "2026-02-01T00:00:00Z"},
			{Number: 2, Created: "2026-03-02T00:00:00Z", Updated: "2026-03-02T00:00:00Z"},
		})
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	result, err := client.FetchPullRequests(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 2, result[0].Number)
}

func TestFetchReleases_FiltersAndTitles(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []releaseJSON{
			{TagName: "v2.0.0", Name: "Two", Prerelease: true, Author: userJSON{Login: "dave"}, Created: "2026-03-03T00:00:00Z"},
			{TagName: "v1.1.0", Author: userJSON{Login: "dave"}, Created: "2026-03-02T00:00:00Z"},
			{TagName: "v1.0.0", Name: "One", Created: "2026-01-01T00:00:00Z"},
		})
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	result, err := client.FetchReleases(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "Two", result[0].Title)
	assert.True(t, result[0].Prerelease)
	assert.Equal(t, "v1.1.0", result[1].Title)
	assert.Equal(t, "v1.1.0", result[1].TagName)
	assert.Equal(t, "dave", result[1].Author)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		want   error
	}{
		{name: "not found", status: http.StatusNotFound, want: driven.ErrNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, want: driven.ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, want: driven.ErrForbidden},
		{name: "server error", status: http.StatusBadGateway, want: driven.ErrUpstream},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, want: driven.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})

			client := newTestClient(t, handler, ghAdapter.Options{})
			_, err := client.FetchCommits(context.Background(), "owner", "repo", since)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *ghAdapter.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestQuotaExhausted_WaitsAndRetries(t *testing.T) {
	var calls atomic.Int32
	reset := strconv.FormatInt(time.Now().Add(-time.Second).Unix(), 10)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", reset)
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
			return
		}
		writeJSON(w, []releaseJSON{})
	})

	client := newTestClient(t, handler, ghAdapter.Options{QuotaRetries: 1})
	result, err := client.FetchReleases(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuotaExhausted_GivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	reset := strconv.FormatInt(time.Now().Add(-time.Second).Unix(), 10)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", reset)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	})

	client := newTestClient(t, handler, ghAdapter.Options{QuotaRetries: 2})
	_, err := client.FetchCommits(context.Background(), "owner", "repo", since)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrQuotaExhausted)
	assert.NotErrorIs(t, err, driven.ErrForbidden)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTimeout_RetriedThenSurfaced(t *testing.T) {
	var calls atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, []prJSON{})
	})

	client := newTestClient(t, handler, ghAdapter.Options{
		Timeout:        20 * time.Millisecond,
		TimeoutRetries: 1,
		RetryInterval:  time.Millisecond,
	})
	_, err := client.FetchPullRequests(context.Background(), "owner", "repo", since)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrTimeout)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBudgetUsage_CountsEveryAttempt(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClient(t, handler, ghAdapter.Options{CallsPerHour: 10})
	_, err := client.FetchIssues(context.Background(), "owner", "repo", since)
	require.Error(t, err)

	_ = client.ValidateRepository(context.Background(), "owner", "repo")

	usage := client.BudgetUsage()
	assert.Equal(t, 2, usage.Used)
	assert.Equal(t, 10, usage.Limit)
	assert.Equal(t, 8, usage.Remaining())
}

func TestRequest_PassesParamsAndReturnsRawJSON(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/tags", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeJSON(w, []map[string]string{{"name": "v1.0.0"}})
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	raw, err := client.Request(context.Background(), "/repos/owner/repo/tags", map[string][]string{"per_page": {"5"}})

	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"v1.0.0"}]`, string(raw))
}

func TestRateLimitStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rate_limit", r.URL.Path)
		writeJSON(w, map[string]any{
			"resources": map[string]any{
				"core": map[string]any{"limit": 5000, "remaining": 4990, "used": 10, "reset": 1772323200},
			},
		})
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	status, err := client.RateLimitStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5000, status.Limit)
	assert.Equal(t, 4990, status.Remaining)
	assert.Equal(t, 10, status.Used)
	assert.Equal(t, time.Unix(1772323200, 0).UTC(), status.Reset)
}

func TestValidateRepository_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	client := newTestClient(t, handler, ghAdapter.Options{})
	err := client.ValidateRepository(context.Background(), "owner", "gone")

	require.Error(t, err)
	assert.True(t, errors.Is(err, driven.ErrNotFound))
}

func TestFetchCommits_WarnsWhenPageCapReached(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Link", fmt.Sprintf(`<%s?page=%d>; rel="next"`, "http://"+r.Host+r.URL.Path, n+1))
		writeJSON(w, []map[string]any{
			{
				"sha":    fmt.Sprintf("sha%d", n),
				"commit": map[string]any{"message": "change", "author": map[string]any{"date": "2026-03-02T00:00:00Z"}},
			},
		})
	})

	client := newTestClient(t, handler, ghAdapter.Options{MaxPages: 2})
	result, err := client.FetchCommits(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, logs.String(), "github pagination cap reached")
	assert.Contains(t, logs.String(), `"repo":"owner/repo"`)
}

func TestFetchCommits_NoCapWarningOnLastPage(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []map[string]any{})
	})

	client := newTestClient(t, handler, ghAdapter.Options{MaxPages: 1})
	_, err := client.FetchCommits(context.Background(), "owner", "repo", since)

	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "pagination cap")
}
