package model

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock trigger time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24-hour clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String renders the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseWeekday parses an English weekday name ("monday", "Mon").
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// ScheduleState is the run state of a registered periodic task.
type ScheduleState string

const (
	ScheduleIdle    ScheduleState = "idle"
	ScheduleRunning ScheduleState = "running"
)

// ScheduleEntry is a read-only snapshot of a registered periodic task.
type ScheduleEntry struct {
	Name       string
	Trigger    string
	State      ScheduleState
	NextRun    time.Time
	LastStart  time.Time
	LastFinish time.Time
	LastError  string
	Runs       int
	Skipped    int

	// Draining is set while an invocation that exceeded its ceiling has not
	// yet returned. New invocations are suppressed until it does.
	Draining bool
}
