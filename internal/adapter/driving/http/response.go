package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	Database string `json:"database,omitempty"`
}

// AddSubscriptionRequest is the JSON body for the add subscription endpoint.
// Only RepoURL is required.
type AddSubscriptionRequest struct {
	RepoURL      string              `json:"repo_url"`
	Kinds        []string            `json:"kinds"`
	Channels     []string            `json:"channels"`
	Frequency    string              `json:"frequency"`
	Filters      *model.FilterRules  `json:"filters"`
	NotifyConfig *model.NotifyConfig `json:"notify_config"`
}

// SubscriptionResponse is the JSON representation of a subscription.
type SubscriptionResponse struct {
	ID           string              `json:"id"`
	RepoURL      string              `json:"repo_url"`
	Repository   string              `json:"repository"`
	Kinds        model.KindSet       `json:"kinds"`
	Channels     []string            `json:"channels"`
	Frequency    string              `json:"frequency"`
	Active       bool                `json:"active"`
	Filters      *model.FilterRules  `json:"filters,omitempty"`
	NotifyConfig *model.NotifyConfig `json:"notify_config,omitempty"`
	CreatedAt    string              `json:"created_at"`
	LastChecked  *string             `json:"last_checked"`
}

// ScanSummaryResponse is the JSON representation of one scan run.
type ScanSummaryResponse struct {
	Period        string            `json:"period"`
	StartedAt     string            `json:"started_at"`
	FinishedAt    string            `json:"finished_at"`
	Subscriptions int               `json:"subscriptions"`
	Succeeded     int               `json:"succeeded"`
	Failures      map[string]string `json:"failures"`
	Updates       int               `json:"updates"`
	ReportID      int64             `json:"report_id,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// LastScansResponse holds the most recent run of each period, if any.
type LastScansResponse struct {
	Daily  *ScanSummaryResponse `json:"daily"`
	Weekly *ScanSummaryResponse `json:"weekly"`
}

// ReportResponse is the JSON representation of a stored report.
type ReportResponse struct {
	ID          int64          `json:"id"`
	Period      string         `json:"period"`
	Title       string         `json:"title"`
	GeneratedAt string         `json:"generated_at"`
	UpdateCount int            `json:"update_count"`
	ByKind      map[string]int `json:"by_kind"`
	ByRepo      map[string]int `json:"by_repository"`
	Markdown    string         `json:"markdown"`
	HTML        string         `json:"html"`
}

// ScheduleEntryResponse is the JSON representation of a scheduled task.
type ScheduleEntryResponse struct {
	Name       string  `json:"name"`
	Trigger    string  `json:"trigger"`
	State      string  `json:"state"`
	NextRun    string  `json:"next_run"`
	LastStart  *string `json:"last_start"`
	LastFinish *string `json:"last_finish"`
	LastError  string  `json:"last_error,omitempty"`
	Runs       int     `json:"runs"`
	Skipped    int     `json:"skipped"`
	Draining   bool    `json:"draining"`
}

// BudgetResponse reports the client-side request budget.
type BudgetResponse struct {
	Used        int    `json:"used"`
	Limit       int    `json:"limit"`
	Remaining   int    `json:"remaining"`
	WindowStart string `json:"window_start"`
	ResetsAt    string `json:"resets_at"`
}

// UpstreamRateResponse reports GitHub's own view of the core rate limit.
type UpstreamRateResponse struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Used      int    `json:"used"`
	Reset     string `json:"reset"`
}

// RateLimitResponse combines the local budget and the upstream limit.
type RateLimitResponse struct {
	Budget        BudgetResponse        `json:"budget"`
	Upstream      *UpstreamRateResponse `json:"upstream"`
	UpstreamError string                `json:"upstream_error,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := formatTime(t)
	return &s
}

// toSubscriptionResponse converts a domain Subscription to its JSON representation.
func toSubscriptionResponse(s model.Subscription) SubscriptionResponse {
	channels := make([]string, 0, len(s.Channels))
	for _, c := range s.Channels {
		channels = append(channels, string(c))
	}

	var lastChecked *string
	if s.LastChecked != nil {
		lastChecked = optionalTime(*s.LastChecked)
	}

	return SubscriptionResponse{
		ID:           s.ID,
		RepoURL:      s.RepoURL,
		Repository:   s.FullName(),
		Kinds:        s.Kinds,
		Channels:     channels,
		Frequency:    string(s.Frequency),
		Active:       s.Active,
		Filters:      s.Filters,
		NotifyConfig: s.NotifyConfig,
		CreatedAt:    formatTime(s.CreatedAt),
		LastChecked:  lastChecked,
	}
}

// toScanSummaryResponse converts a ScanSummary to its JSON representation.
func toScanSummaryResponse(s model.ScanSummary) ScanSummaryResponse {
	failures := s.Failures
	if failures == nil {
		failures = map[string]string{}
	}

	return ScanSummaryResponse{
		Period:        string(s.Period),
		StartedAt:     formatTime(s.StartedAt),
		FinishedAt:    formatTime(s.FinishedAt),
		Subscriptions: s.Subscriptions,
		Succeeded:     s.Succeeded,
		Failures:      failures,
		Updates:       s.Updates,
		ReportID:      s.ReportID,
		Error:         s.Err,
	}
}

// toReportResponse converts a stored Report to its JSON representation.
func toReportResponse(r model.Report) ReportResponse {
	byKind := make(map[string]int, len(r.ByKind))
	for k, n := range r.ByKind {
		byKind[string(k)] = n
	}
	byRepo := r.ByRepo
	if byRepo == nil {
		byRepo = map[string]int{}
	}

	return ReportResponse{
		ID:          r.ID,
		Period:      string(r.Period),
		Title:       r.Title(),
		GeneratedAt: formatTime(r.GeneratedAt),
		UpdateCount: r.UpdateCount,
		ByKind:      byKind,
		ByRepo:      byRepo,
		Markdown:    r.Markdown,
		HTML:        r.HTML,
	}
}

// toScheduleEntryResponse converts a ScheduleEntry to its JSON representation.
func toScheduleEntryResponse(e model.ScheduleEntry) ScheduleEntryResponse {
	return ScheduleEntryResponse{
		Name:       e.Name,
		Trigger:    e.Trigger,
		State:      string(e.State),
		NextRun:    formatTime(e.NextRun),
		LastStart:  optionalTime(e.LastStart),
		LastFinish: optionalTime(e.LastFinish),
		LastError:  e.LastError,
		Runs:       e.Runs,
		Skipped:    e.Skipped,
		Draining:   e.Draining,
	}
}

func toBudgetResponse(b model.BudgetUsage) BudgetResponse {
	return BudgetResponse{
		Used:        b.Used,
		Limit:       b.Limit,
		Remaining:   b.Remaining(),
		WindowStart: formatTime(b.WindowStart),
		ResetsAt:    formatTime(b.ResetsAt),
	}
}
