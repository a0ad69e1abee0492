package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/gitsentinel/internal/application"
	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

const (
	defaultReportLimit = 10
	maxReportLimit     = 100
)

// Scanner triggers scans and reports their outcome.
type Scanner interface {
	Scan(ctx context.Context, period model.Period) (model.ScanSummary, error)
	LastRun(period model.Period) (model.ScanSummary, bool)
}

// ReportLister lists stored reports.
type ReportLister interface {
	Recent(ctx context.Context, limit int) ([]model.Report, error)
}

// ScheduleLister exposes the scheduler's task table.
type ScheduleLister interface {
	Entries() []model.ScheduleEntry
}

// Pinger checks storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	subStore driven.SubscriptionStore
	github   driven.GitHubClient
	scanner  Scanner
	reports  ReportLister
	schedule ScheduleLister
	db       Pinger
	logger   *slog.Logger

	scanTimeout time.Duration
}

// NewHandler creates a Handler. github, scanner, reports, schedule and db may
// be nil; the endpoints that need them then answer 503. scanTimeout bounds a
// manual scan; zero selects application.DefaultTaskTimeout.
func NewHandler(
	subStore driven.SubscriptionStore,
	github driven.GitHubClient,
	scanner Scanner,
	reports ReportLister,
	schedule ScheduleLister,
	db Pinger,
	scanTimeout time.Duration,
	logger *slog.Logger,
) *Handler {
	if scanTimeout <= 0 {
		scanTimeout = application.DefaultTaskTimeout
	}

	return &Handler{
		subStore: subStore,
		github:   github,
		scanner:  scanner,
		reports:  reports,
		schedule: schedule,
		db:       db,
		logger:   logger,

		scanTimeout: scanTimeout,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/subscriptions", h.ListSubscriptions)
	mux.HandleFunc("POST /api/v1/subscriptions", h.AddSubscription)
	mux.HandleFunc("GET /api/v1/subscriptions/{id}", h.GetSubscription)
	mux.HandleFunc("DELETE /api/v1/subscriptions/{id}", h.DeleteSubscription)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/deactivate", h.DeactivateSubscription)
	mux.HandleFunc("POST /api/v1/scans/{period}", h.TriggerScan)
	mux.HandleFunc("GET /api/v1/scans/last", h.LastScans)
	mux.HandleFunc("GET /api/v1/reports", h.ListReports)
	mux.HandleFunc("GET /api/v1/schedule", h.Schedule)
	mux.HandleFunc("GET /api/v1/ratelimit", h.RateLimit)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response. When a database is wired
// its liveness is included and a failed ping answers 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   formatTime(time.Now()),
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Error("health check: database unreachable", "error", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "ok"
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListSubscriptions returns every subscription, or only active ones with
// ?active=true.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	list := h.subStore.ListAll
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		list = h.subStore.ListActive
	}

	subs, err := list(r.Context())
	if err != nil {
		h.logger.Error("failed to list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, toSubscriptionResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSubscription returns a single subscription by ID.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sub, err := h.subStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, driven.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.Error("failed to get subscription", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(*sub))
}

// AddSubscription validates the request, checks the repository exists
// upstream and stores a new active subscription.
func (h *Handler) AddSubscription(w http.ResponseWriter, r *http.Request) {
	var req AddSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := subscriptionFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.github != nil {
		if err := h.github.ValidateRepository(r.Context(), sub.Owner, sub.Repo); err != nil {
			switch {
			case errors.Is(err, driven.ErrNotFound):
				writeError(w, http.StatusUnprocessableEntity, "repository not found on GitHub")
			default:
				h.logger.Error("failed to validate repository", "repo", sub.FullName(), "error", err)
				writeError(w, http.StatusBadGateway, "could not validate repository with GitHub")
			}
			return
		}
	}

	if err := h.subStore.Add(r.Context(), sub); err != nil {
		if errors.Is(err, driven.ErrSubscriptionExists) {
			writeError(w, http.StatusConflict, "an active subscription for this repository already exists")
			return
		}
		h.logger.Error("failed to add subscription", "repo", sub.FullName(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("subscription added", "id", sub.ID, "repo", sub.FullName(), "kinds", sub.Kinds, "frequency", sub.Frequency)

	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

// DeleteSubscription permanently removes a subscription.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	h.mutateSubscription(w, r, "delete", h.subStore.Delete)
}

// DeactivateSubscription stops scanning a subscription but keeps its record.
func (h *Handler) DeactivateSubscription(w http.ResponseWriter, r *http.Request) {
	h.mutateSubscription(w, r, "deactivate", h.subStore.Deactivate)
}

func (h *Handler) mutateSubscription(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string) error) {
	id := r.PathValue("id")

	if err := fn(r.Context(), id); err != nil {
		if errors.Is(err, driven.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.Error("failed to "+action+" subscription", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerScan runs a scan of the given period and returns its summary. The
// scan is detached from the request so a disconnecting client does not
// abort it halfway, but it is bounded by the scan timeout so a stalled pass
// cannot hold the period's lock against scheduled runs.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanning not available")
		return
	}

	period, err := model.ParsePeriod(r.PathValue("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.scanTimeout)
	defer cancel()

	summary, err := h.scanner.Scan(ctx, period)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toScanSummaryResponse(summary))
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("manual scan timed out", "period", period, "timeout", h.scanTimeout)
		writeJSON(w, http.StatusGatewayTimeout, toScanSummaryResponse(summary))
	case errors.Is(err, application.ErrScanInProgress):
		writeError(w, http.StatusConflict, "a "+string(period)+" scan is already running")
	case errors.Is(err, driven.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, "GitHub rejected the configured token")
	default:
		h.logger.Error("manual scan failed", "period", period, "error", err)
		writeJSON(w, http.StatusInternalServerError, toScanSummaryResponse(summary))
	}
}

// LastScans returns the most recent summary of each period.
func (h *Handler) LastScans(w http.ResponseWriter, _ *http.Request) {
	if h.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanning not available")
		return
	}

	var resp LastScansResponse
	if s, ok := h.scanner.LastRun(model.PeriodDaily); ok {
		out := toScanSummaryResponse(s)
		resp.Daily = &out
	}
	if s, ok := h.scanner.LastRun(model.PeriodWeekly); ok {
		out := toScanSummaryResponse(s)
		resp.Weekly = &out
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListReports returns recent reports, newest first. ?limit= caps the count.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "reports not available")
		return
	}

	limit := defaultReportLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxReportLimit)
	}

	reports, err := h.reports.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list reports", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ReportResponse, 0, len(reports))
	for _, rep := range reports {
		resp = append(resp, toReportResponse(rep))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Schedule returns the scheduler's registered tasks and their state.
func (h *Handler) Schedule(w http.ResponseWriter, _ *http.Request) {
	if h.schedule == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}

	entries := h.schedule.Entries()
	resp := make([]ScheduleEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toScheduleEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RateLimit reports the local request budget together with GitHub's own
// view of the quota. An upstream failure is reported inline, not as an error
// status.
func (h *Handler) RateLimit(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, http.StatusServiceUnavailable, "GitHub client not available")
		return
	}

	resp := RateLimitResponse{Budget: toBudgetResponse(h.github.BudgetUsage())}

	status, err := h.github.RateLimitStatus(r.Context())
	if err != nil {
		h.logger.Warn("failed to fetch upstream rate limit", "error", err)
		resp.UpstreamError = err.Error()
	} else {
		resp.Upstream = &UpstreamRateResponse{
			Limit:     status.Limit,
			Remaining: status.Remaining,
			Used:      status.Used,
			Reset:     formatTime(status.Reset),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// subscriptionFromRequest applies defaults and validates a request body:
// every kind when none is given, daily frequency, no channels.
func subscriptionFromRequest(req AddSubscriptionRequest) (model.Subscription, error) {
	owner, repo, err := model.ParseRepoURL(req.RepoURL)
	if err != nil {
		return model.Subscription{}, err
	}
	if !isValidRepoName(owner + "/" + repo) {
		return model.Subscription{}, errors.New("invalid repository name: expected owner/repo format")
	}

	kinds := model.NewKindSet(model.KindAll)
	if len(req.Kinds) > 0 {
		if kinds, err = model.ParseKindSet(req.Kinds); err != nil {
			return model.Subscription{}, err
		}
	}

	frequency := model.FrequencyDaily
	if req.Frequency != "" {
		if frequency, err = model.ParseFrequency(req.Frequency); err != nil {
			return model.Subscription{}, err
		}
	}

	channels := make([]model.Channel, 0, len(req.Channels))
	for _, name := range req.Channels {
		c, err := model.ParseChannel(name)
		if err != nil {
			return model.Subscription{}, err
		}
		channels = append(channels, c)
	}

	return model.Subscription{
		ID:           uuid.NewString(),
		RepoURL:      "https://github.com/" + owner + "/" + repo,
		Owner:        owner,
		Repo:         repo,
		Kinds:        kinds,
		Channels:     channels,
		Frequency:    frequency,
		Active:       true,
		Filters:      req.Filters,
		NotifyConfig: req.NotifyConfig,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// isValidRepoName validates that name is in owner/repo format where each part
// contains only alphanumeric characters, hyphens, dots, or underscores.
func isValidRepoName(name string) bool {
	owner, repo, ok := strings.Cut(name, "/")
	if !ok {
		return false
	}

	for _, part := range []string{owner, repo} {
		if part == "" {
			return false
		}
		for _, ch := range part {
			if !isValidRepoChar(ch) {
				return false
			}
		}
	}

	return true
}

// isValidRepoChar returns true if the rune is allowed in a repository owner or name.
func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
