package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/gitsentinel/internal/adapter/driving/http"
	"github.com/ericfisherdev/gitsentinel/internal/application"
	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockSubStore struct {
	subs       []model.Subscription
	active     []model.Subscription
	sub        *model.Subscription
	err        error
	addErr     error
	mutateErr  error
	added      model.Subscription
	activeOnly bool
}

func (m *mockSubStore) Add(_ context.Context, s model.Subscription) error {
	m.added = s
	return m.addErr
}
func (m *mockSubStore) Get(_ context.Context, _ string) (*model.Subscription, error) {
	if m.sub == nil && m.err == nil {
		return nil, driven.ErrSubscriptionNotFound
	}
	return m.sub, m.err
}
func (m *mockSubStore) ListAll(_ context.Context) ([]model.Subscription, error) {
	return m.subs, m.err
}
func (m *mockSubStore) ListActive(_ context.Context) ([]model.Subscription, error) {
	m.activeOnly = true
	return m.active, m.err
}
func (m *mockSubStore) ListByFrequency(_ context.Context, _ model.Period) ([]model.Subscription, error) {
	return nil, nil
}
func (m *mockSubStore) Deactivate(_ context.Context, _ string) error { return m.mutateErr }
func (m *mockSubStore) Delete(_ context.Context, _ string) error     { return m.mutateErr }
func (m *mockSubStore) UpdateLastChecked(_ context.Context, _ []string, _ time.Time) error {
	return nil
}

type mockGitHub struct {
	validateErr error
	rate        *model.RateLimitStatus
	rateErr     error
	budget      model.BudgetUsage
}

func (m *mockGitHub) FetchCommits(context.Context, string, string, time.Time) ([]model.UpdateRecord, error) {
	return nil, nil
}
func (m *mockGitHub) FetchIssues(context.Context, string, string, time.Time) ([]model.UpdateRecord, error) {
	return nil, nil
}
func (m *mockGitHub) FetchPullRequests(context.Context, string, string, time.Time) ([]model.UpdateRecord, error) {
	return nil, nil
}
func (m *mockGitHub) FetchReleases(context.Context, string, string, time.Time) ([]model.UpdateRecord, error) {
	return nil, nil
}
func (m *mockGitHub) ValidateRepository(context.Context, string, string) error { return m.validateErr }
func (m *mockGitHub) RateLimitStatus(context.Context) (*model.RateLimitStatus, error) {
	return m.rate, m.rateErr
}
func (m *mockGitHub) BudgetUsage() model.BudgetUsage { return m.budget }

type mockScanner struct {
	summary model.ScanSummary
	err     error
	last    map[model.Period]model.ScanSummary
	period  model.Period
}

func (m *mockScanner) Scan(_ context.Context, p model.Period) (model.ScanSummary, error) {
	m.period = p
	return m.summary, m.err
}
func (m *mockScanner) LastRun(p model.Period) (model.ScanSummary, bool) {
	s, ok := m.last[p]
	return s, ok
}

type mockReports struct {
	reports []model.Report
	err     error
	limit   int
}

func (m *mockReports) Recent(_ context.Context, limit int) ([]model.Report, error) {
	m.limit = limit
	return m.reports, m.err
}

type mockSchedule struct{ entries []model.ScheduleEntry }

func (m *mockSchedule) Entries() []model.ScheduleEntry { return m.entries }

type mockPinger struct{ err error }

func (m *mockPinger) Ping(context.Context) error { return m.err }

// --- Test helpers ---

var (
	testTime    = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	testTimeStr = "2026-02-10T12:00:00Z"
)

type deps struct {
	subs     *mockSubStore
	github   *mockGitHub
	scanner  *mockScanner
	reports  *mockReports
	schedule *mockSchedule
	db       *mockPinger
}

// setupMux wires only the non-nil dependencies.
func setupMux(d deps) http.Handler {
	if d.subs == nil {
		d.subs = &mockSubStore{}
	}

	var (
		github   driven.GitHubClient
		scanner  httphandler.Scanner
		reports  httphandler.ReportLister
		schedule httphandler.ScheduleLister
		db       httphandler.Pinger
	)
	if d.github != nil {
		github = d.github
	}
	if d.scanner != nil {
		scanner = d.scanner
	}
	if d.reports != nil {
		reports = d.reports
	}
	if d.schedule != nil {
		schedule = d.schedule
	}
	if d.db != nil {
		db = d.db
	}

	h := httphandler.NewHandler(d.subs, github, scanner, reports, schedule, db, 0, slog.Default())
	return httphandler.NewServeMux(h, slog.Default())
}

func serve(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

func sampleSub() model.Subscription {
	checked := testTime.Add(time.Hour)
	return model.Subscription{
		ID:          "sub-1",
		RepoURL:     "https://github.com/owner/repo",
		Owner:       "owner",
		Repo:        "repo",
		Kinds:       model.NewKindSet(model.KindCommit, model.KindRelease),
		Channels:    []model.Channel{model.ChannelSlack},
		Frequency:   model.FrequencyBoth,
		Active:      true,
		Filters:     &model.FilterRules{ExcludeAuthors: []string{"dependabot[bot]"}},
		CreatedAt:   testTime,
		LastChecked: &checked,
	}
}

// --- Tests ---

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         *mockPinger
		wantStatus int
		wantState  string
	}{
		{name: "no database wired", wantStatus: http.StatusOK, wantState: "ok"},
		{name: "database ok", db: &mockPinger{}, wantStatus: http.StatusOK, wantState: "ok"},
		{name: "database down", db: &mockPinger{err: errors.New("closed")}, wantStatus: http.StatusServiceUnavailable, wantState: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(setupMux(deps{db: tt.db}), http.MethodGet, "/api/v1/health", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

			var resp map[string]any
			decodeJSON(t, rec, &resp)
			assert.Equal(t, tt.wantState, resp["status"])
			assert.NotEmpty(t, resp["time"])
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()

	setupMux(deps{}).ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestListSubscriptions(t *testing.T) {
	store := &mockSubStore{subs: []model.Subscription{sampleSub()}}
	rec := serve(setupMux(deps{subs: store}), http.MethodGet, "/api/v1/subscriptions", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	decodeJSON(t, rec, &resp)
	require.Len(t, resp, 1)

	s := resp[0]
	assert.Equal(t, "sub-1", s["id"])
	assert.Equal(t, "owner/repo", s["repository"])
	assert.Equal(t, []any{"commit", "release"}, s["kinds"])
	assert.Equal(t, []any{"slack"}, s["channels"])
	assert.Equal(t, "both", s["frequency"])
	assert.Equal(t, testTimeStr, s["created_at"])
	assert.Equal(t, "2026-02-10T13:00:00Z", s["last_checked"])
	assert.False(t, store.activeOnly)
}

func TestListSubscriptions_ActiveOnly(t *testing.T) {
	store := &mockSubStore{active: []model.Subscription{}}
	rec := serve(setupMux(deps{subs: store}), http.MethodGet, "/api/v1/subscriptions?active=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.activeOnly)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListSubscriptions_StoreError(t *testing.T) {
	store := &mockSubStore{err: errors.New("db gone")}
	rec := serve(setupMux(deps{subs: store}), http.MethodGet, "/api/v1/subscriptions", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetSubscription(t *testing.T) {
	found := sampleSub()
	tests := []struct {
		name       string
		store      *mockSubStore
		wantStatus int
	}{
		{name: "found", store: &mockSubStore{sub: &found}, wantStatus: http.StatusOK},
		{name: "not found", store: &mockSubStore{}, wantStatus: http.StatusNotFound},
		{name: "store error", store: &mockSubStore{err: errors.New("boom")}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(setupMux(deps{subs: tt.store}), http.MethodGet, "/api/v1/subscriptions/sub-1", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAddSubscription(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		store      *mockSubStore
		github     *mockGitHub
		wantStatus int
		wantError  string
	}{
		{
			name:       "minimal body gets defaults",
			body:       `{"repo_url": "https://github.com/owner/repo"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "bare owner/repo with options",
			body:       `{"repo_url": "owner/repo", "kinds": ["prs", "releases"], "channels": ["email"], "frequency": "weekly"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid JSON",
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "not a repository",
			body:       `{"repo_url": "invalid"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown kind",
			body:       `{"repo_url": "owner/repo", "kinds": ["wiki"]}`,
			wantStatus: http.StatusBadRequest,
			wantError:  `unknown update kind "wiki"`,
		},
		{
			name:       "unknown channel",
			body:       `{"repo_url": "owner/repo", "channels": ["pager"]}`,
			wantStatus: http.StatusBadRequest,
			wantError:  `unknown notification channel "pager"`,
		},
		{
			name:       "unknown frequency",
			body:       `{"repo_url": "owner/repo", "frequency": "hourly"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  `unknown frequency "hourly"`,
		},
		{
			name:       "repository missing upstream",
			body:       `{"repo_url": "owner/repo"}`,
			github:     &mockGitHub{validateErr: fmt.Errorf("get repo: %w", driven.ErrNotFound)},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "repository not found on GitHub",
		},
		{
			name:       "upstream unavailable",
			body:       `{"repo_url": "owner/repo"}`,
			github:     &mockGitHub{validateErr: driven.ErrUpstream},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "duplicate",
			body:       `{"repo_url": "owner/repo"}`,
			store:      &mockSubStore{addErr: fmt.Errorf("add: %w", driven.ErrSubscriptionExists)},
			wantStatus: http.StatusConflict,
			wantError:  "an active subscription for this repository already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store
			if store == nil {
				store = &mockSubStore{}
			}
			github := tt.github
			if github == nil {
				github = &mockGitHub{}
			}

			rec := serve(setupMux(deps{subs: store, github: github}), http.MethodPost, "/api/v1/subscriptions", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantError != "" {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				assert.Equal(t, tt.wantError, resp["error"])
			}
		})
	}
}

func TestAddSubscription_StoresNormalizedSubscription(t *testing.T) {
	store := &mockSubStore{}
	body := `{"repo_url": "https://github.com/Owner/Repo.git", "kinds": ["prs"], "filters": {"keywords": ["security"]}}`

	rec := serve(setupMux(deps{subs: store}), http.MethodPost, "/api/v1/subscriptions", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	got := store.added
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Owner", got.Owner)
	assert.Equal(t, "Repo", got.Repo)
	assert.Equal(t, "https://github.com/Owner/Repo", got.RepoURL)
	assert.Equal(t, model.NewKindSet(model.KindPullRequest), got.Kinds)
	assert.Equal(t, model.FrequencyDaily, got.Frequency)
	assert.True(t, got.Active)
	assert.Nil(t, got.LastChecked)
	require.NotNil(t, got.Filters)
	assert.Equal(t, []string{"security"}, got.Filters.Keywords)
}

func TestSubscriptionMutations(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		err        error
		wantStatus int
	}{
		{name: "delete", method: http.MethodDelete, path: "/api/v1/subscriptions/sub-1", wantStatus: http.StatusNoContent},
		{name: "delete missing", method: http.MethodDelete, path: "/api/v1/subscriptions/nope", err: driven.ErrSubscriptionNotFound, wantStatus: http.StatusNotFound},
		{name: "deactivate", method: http.MethodPost, path: "/api/v1/subscriptions/sub-1/deactivate", wantStatus: http.StatusNoContent},
		{name: "deactivate missing", method: http.MethodPost, path: "/api/v1/subscriptions/nope/deactivate", err: driven.ErrSubscriptionNotFound, wantStatus: http.StatusNotFound},
		{name: "deactivate store error", method: http.MethodPost, path: "/api/v1/subscriptions/sub-1/deactivate", err: errors.New("locked"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(setupMux(deps{subs: &mockSubStore{mutateErr: tt.err}}), tt.method, tt.path, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Empty(t, rec.Body.String())
			}
		})
	}
}

func TestTriggerScan(t *testing.T) {
	summary := model.ScanSummary{
		Period:        model.PeriodWeekly,
		StartedAt:     testTime,
		FinishedAt:    testTime.Add(time.Minute),
		Subscriptions: 3,
		Succeeded:     2,
		Failures:      map[string]string{"s3": "issue: quota exhausted"},
		Updates:       12,
		ReportID:      5,
	}

	tests := []struct {
		name       string
		path       string
		scanner    *mockScanner
		wantStatus int
	}{
		{name: "success", path: "/api/v1/scans/weekly", scanner: &mockScanner{summary: summary}, wantStatus: http.StatusOK},
		{name: "unknown period", path: "/api/v1/scans/hourly", scanner: &mockScanner{}, wantStatus: http.StatusBadRequest},
		{name: "already running", path: "/api/v1/scans/daily", scanner: &mockScanner{err: application.ErrScanInProgress}, wantStatus: http.StatusConflict},
		{name: "token rejected", path: "/api/v1/scans/daily", scanner: &mockScanner{err: fmt.Errorf("fetch pass aborted: %w", driven.ErrUnauthorized)}, wantStatus: http.StatusBadGateway},
		{name: "other failure", path: "/api/v1/scans/daily", scanner: &mockScanner{summary: summary, err: errors.New("advance checkpoints: locked")}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(setupMux(deps{scanner: tt.scanner}), http.MethodPost, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				assert.Equal(t, "weekly", resp["period"])
				assert.Equal(t, float64(12), resp["updates"])
				assert.Equal(t, float64(5), resp["report_id"])
				assert.Equal(t, map[string]any{"s3": "issue: quota exhausted"}, resp["failures"])
				assert.Equal(t, model.PeriodWeekly, tt.scanner.period)
			}
		})
	}
}

// stallingScanner blocks until its context ends, like a pass stuck waiting
// for the call budget.
type stallingScanner struct {
	ctxErr   error
	deadline bool
}

func (s *stallingScanner) Scan(ctx context.Context, p model.Period) (model.ScanSummary, error) {
	_, s.deadline = ctx.Deadline()
	<-ctx.Done()
	s.ctxErr = ctx.Err()
	return model.ScanSummary{Period: p, Err: ctx.Err().Error()}, fmt.Errorf("fetch pass: %w", ctx.Err())
}

func (s *stallingScanner) LastRun(model.Period) (model.ScanSummary, bool) {
	return model.ScanSummary{}, false
}

func TestTriggerScan_StalledScanIsBounded(t *testing.T) {
	scanner := &stallingScanner{}
	h := httphandler.NewHandler(&mockSubStore{}, nil, scanner, nil, nil, nil, 20*time.Millisecond, slog.Default())

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- serve(httphandler.NewServeMux(h, slog.Default()), http.MethodPost, "/api/v1/scans/daily", "")
	}()

	var rec *httptest.ResponseRecorder
	select {
	case rec = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manual scan was not cancelled by its timeout")
	}

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.True(t, scanner.deadline)
	assert.ErrorIs(t, scanner.ctxErr, context.DeadlineExceeded)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "daily", resp["period"])
}

func TestTriggerScan_NotWired(t *testing.T) {
	rec := serve(setupMux(deps{}), http.MethodPost, "/api/v1/scans/daily", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLastScans(t *testing.T) {
	scanner := &mockScanner{last: map[model.Period]model.ScanSummary{
		model.PeriodDaily: {Period: model.PeriodDaily, StartedAt: testTime, FinishedAt: testTime},
	}}
	rec := serve(setupMux(deps{scanner: scanner}), http.MethodGet, "/api/v1/scans/last", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	daily, ok := resp["daily"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, testTimeStr, daily["started_at"])
	assert.Equal(t, map[string]any{}, daily["failures"])
	assert.Nil(t, resp["weekly"])
}

func TestListReports(t *testing.T) {
	reports := &mockReports{reports: []model.Report{{
		ID:          9,
		Period:      model.PeriodDaily,
		GeneratedAt: testTime,
		UpdateCount: 3,
		ByKind:      map[model.Kind]int{model.KindIssue: 3},
		ByRepo:      map[string]int{"owner/repo": 3},
		Markdown:    "# report",
		HTML:        "<h1>report</h1>",
	}}}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{name: "default limit", query: "", wantStatus: http.StatusOK, wantLimit: 10},
		{name: "explicit limit", query: "?limit=3", wantStatus: http.StatusOK, wantLimit: 3},
		{name: "limit capped", query: "?limit=1000", wantStatus: http.StatusOK, wantLimit: 100},
		{name: "invalid limit", query: "?limit=zero", wantStatus: http.StatusBadRequest},
		{name: "negative limit", query: "?limit=-1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports.limit = 0
			rec := serve(setupMux(deps{reports: reports}), http.MethodGet, "/api/v1/reports"+tt.query, "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantLimit, reports.limit)

			var resp []map[string]any
			decodeJSON(t, rec, &resp)
			require.Len(t, resp, 1)
			assert.Equal(t, "Daily repository report - 2026-02-10", resp[0]["title"])
			assert.Equal(t, map[string]any{"issue": float64(3)}, resp[0]["by_kind"])
		})
	}
}

func TestSchedule(t *testing.T) {
	schedule := &mockSchedule{entries: []model.ScheduleEntry{{
		Name:    "daily-scan",
		Trigger: "daily at 09:00",
		State:   model.ScheduleIdle,
		NextRun: testTime,
		Runs:    4,
	}}}
	rec := serve(setupMux(deps{schedule: schedule}), http.MethodGet, "/api/v1/schedule", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	decodeJSON(t, rec, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "daily-scan", resp[0]["name"])
	assert.Equal(t, "idle", resp[0]["state"])
	assert.Equal(t, testTimeStr, resp[0]["next_run"])
	assert.Nil(t, resp[0]["last_start"])
	assert.Equal(t, float64(4), resp[0]["runs"])
}

func TestRateLimit(t *testing.T) {
	budget := model.BudgetUsage{Used: 40, Limit: 100, WindowStart: testTime, ResetsAt: testTime.Add(time.Hour)}

	t.Run("upstream available", func(t *testing.T) {
		github := &mockGitHub{
			budget: budget,
			rate:   &model.RateLimitStatus{Limit: 5000, Remaining: 4990, Used: 10, Reset: testTime},
		}
		rec := serve(setupMux(deps{github: github}), http.MethodGet, "/api/v1/ratelimit", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		decodeJSON(t, rec, &resp)
		b := resp["budget"].(map[string]any)
		assert.Equal(t, float64(60), b["remaining"])
		assert.Equal(t, "2026-02-10T13:00:00Z", b["resets_at"])
		u := resp["upstream"].(map[string]any)
		assert.Equal(t, float64(4990), u["remaining"])
		assert.Nil(t, resp["upstream_error"])
	})

	t.Run("upstream failing", func(t *testing.T) {
		github := &mockGitHub{budget: budget, rateErr: driven.ErrUpstream}
		rec := serve(setupMux(deps{github: github}), http.MethodGet, "/api/v1/ratelimit", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		decodeJSON(t, rec, &resp)
		assert.Nil(t, resp["upstream"])
		assert.Equal(t, driven.ErrUpstream.Error(), resp["upstream_error"])
	})
}

type panicScanner struct{ mockScanner }

func (p *panicScanner) Scan(context.Context, model.Period) (model.ScanSummary, error) {
	panic("scanner exploded")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := httphandler.NewHandler(&mockSubStore{}, nil, &panicScanner{}, nil, nil, nil, 0, slog.Default())
	rec := serve(httphandler.NewServeMux(h, slog.Default()), http.MethodPost, "/api/v1/scans/daily", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "internal server error", resp["error"])
}
