package model

import (
	"fmt"
	"strings"
	"time"
)

// Period identifies a scheduled scan cadence.
type Period string

const (
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

// ParsePeriod converts a string to a Period.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDaily, PeriodWeekly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown scan period %q", s)
	}
}

// Lookback is the default fetch window for subscriptions without a checkpoint.
func (p Period) Lookback() time.Duration {
	if p == PeriodWeekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// Report is a rendered change set produced by one scan.
type Report struct {
	ID          int64
	Period      Period
	GeneratedAt time.Time
	Updates     []UpdateRecord
	UpdateCount int
	ByKind      map[Kind]int
	ByRepo      map[string]int
	Markdown    string
	HTML        string
}

// Title returns the human-readable report heading.
func (r Report) Title() string {
	label := "Daily"
	if r.Period == PeriodWeekly {
		label = "Weekly"
	}
	return fmt.Sprintf("%s repository report - %s", label, r.GeneratedAt.UTC().Format("2006-01-02"))
}

// ScanSummary records the result of one scan for observability.
type ScanSummary struct {
	Period        Period
	StartedAt     time.Time
	FinishedAt    time.Time
	Subscriptions int
	Succeeded     int
	Failures      map[string]string // subscription ID -> error message
	Updates       int
	ReportID      int64
	Err           string
}
