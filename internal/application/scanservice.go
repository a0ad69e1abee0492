package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// ErrScanInProgress is returned when a scan of the same period is already running.
var ErrScanInProgress = errors.New("scan already in progress")

// ScanService runs one full scan: load subscriptions, fetch, report, notify
// and advance checkpoints.
type ScanService struct {
	subs     driven.SubscriptionStore
	orch     *FetchOrchestrator
	reports  *ReportService
	notifier driven.Notifier
	clock    clockwork.Clock

	running map[model.Period]*sync.Mutex

	mu   sync.RWMutex
	last map[model.Period]model.ScanSummary
}

// NewScanService creates a ScanService. notifier may be nil, in which case
// reports are generated and stored but not delivered. A nil clock selects
// the real clock.
func NewScanService(
	subs driven.SubscriptionStore,
	orch *FetchOrchestrator,
	reports *ReportService,
	notifier driven.Notifier,
	clock clockwork.Clock,
) *ScanService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &ScanService{
		subs:     subs,
		orch:     orch,
		reports:  reports,
		notifier: notifier,
		clock:    clock,
		running: map[model.Period]*sync.Mutex{
			model.PeriodDaily:  {},
			model.PeriodWeekly: {},
		},
		last: make(map[model.Period]model.ScanSummary),
	}
}

// RunDaily scans subscriptions with daily or both frequency.
func (s *ScanService) RunDaily(ctx context.Context) error {
	_, err := s.Scan(ctx, model.PeriodDaily)
	return err
}

// RunWeekly scans subscriptions with weekly or both frequency.
func (s *ScanService) RunWeekly(ctx context.Context) error {
	_, err := s.Scan(ctx, model.PeriodWeekly)
	return err
}

// Scan runs one scan of the given period and returns its summary. Scans of
// the same period never run concurrently; a second caller gets
// ErrScanInProgress.
func (s *ScanService) Scan(ctx context.Context, period model.Period) (model.ScanSummary, error) {
	lock, ok := s.running[period]
	if !ok {
		return model.ScanSummary{}, fmt.Errorf("unknown scan period %q", period)
	}
	if !lock.TryLock() {
		return model.ScanSummary{}, ErrScanInProgress
	}
	defer lock.Unlock()

	passStart := s.clock.Now().UTC()
	summary := model.ScanSummary{Period: period, StartedAt: passStart}

	err := s.scan(ctx, period, &summary)
	summary.FinishedAt = s.clock.Now().UTC()
	if err != nil {
		summary.Err = err.Error()
	}

	s.mu.Lock()
	s.last[period] = summary
	s.mu.Unlock()

	slog.Info("scan finished",
		"period", period,
		"subscriptions", summary.Subscriptions,
		"succeeded", summary.Succeeded,
		"failed", len(summary.Failures),
		"updates", summary.Updates,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
		"error", err,
	)

	return summary, err
}

func (s *ScanService) scan(ctx context.Context, period model.Period, summary *model.ScanSummary) error {
	subs, err := s.subs.ListByFrequency(ctx, period)
	if err != nil {
		return fmt.Errorf("list %s subscriptions: %w", period, err)
	}
	summary.Subscriptions = len(subs)

	if len(subs) == 0 {
		slog.Info("no subscriptions to scan", "period", period)
		return nil
	}

	passStart := summary.StartedAt
	result, err := s.orch.Run(ctx, subs, passStart.Add(-period.Lookback()))
	if err != nil {
		return err
	}

	succeeded := result.SucceededIDs()
	summary.Succeeded = len(succeeded)
	summary.Failures = result.Failures()
	summary.Updates = len(result.Updates)

	if len(result.Updates) > 0 {
		report, err := s.reports.Generate(ctx, period, result.Updates, passStart)
		if err != nil {
			// Without a stored report the fetched updates would be lost, so
			// checkpoints stay where they are and the next scan refetches.
			return err
		}
		summary.ReportID = report.ID

		s.notify(ctx, report, subs, result)
	}

	if len(succeeded) > 0 {
		if err := s.subs.UpdateLastChecked(ctx, succeeded, passStart); err != nil {
			return fmt.Errorf("advance checkpoints: %w", err)
		}
	}

	return nil
}

// notify delivers the report to the subscriptions that contributed to it.
// Delivery failures are logged and do not hold back checkpoints.
func (s *ScanService) notify(ctx context.Context, report model.Report, subs []model.Subscription, result *RunResult) {
	if s.notifier == nil {
		return
	}

	recipients := make([]model.Subscription, 0, len(subs))
	for _, sub := range subs {
		if out, ok := result.Outcomes[sub.ID]; ok && out.Succeeded() && len(sub.Channels) > 0 {
			recipients = append(recipients, sub)
		}
	}
	if len(recipients) == 0 {
		return
	}

	if err := s.notifier.Notify(ctx, report, recipients); err != nil {
		slog.Error("report delivery failed", "report", report.ID, "period", report.Period, "error", err)
	}
}

// LastRun returns the summary of the most recent scan of period.
func (s *ScanService) LastRun(period model.Period) (model.ScanSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.last[period]
	return summary, ok
}
