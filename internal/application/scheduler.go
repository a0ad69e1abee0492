package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// Scheduler defaults.
const (
	DefaultCheckInterval = time.Minute
	DefaultTaskTimeout   = 5 * time.Minute
	DefaultStopTimeout   = 5 * time.Second
)

// errTaskTimeout is the cancellation cause of a task that hit its ceiling.
var errTaskTimeout = errors.New("task exceeded its time limit")

// Task is a periodic unit of work. It should honour ctx cancellation.
type Task func(ctx context.Context) error

// SchedulerOptions tunes a Scheduler. Zero values select the defaults.
type SchedulerOptions struct {
	CheckInterval time.Duration
	TaskTimeout   time.Duration
	StopTimeout   time.Duration
	Location      *time.Location
	Clock         clockwork.Clock
}

// Scheduler fires registered tasks at wall-clock triggers. A task never
// overlaps itself: a trigger that arrives while the previous invocation is
// still running is skipped, not queued.
type Scheduler struct {
	clock clockwork.Clock
	opts  SchedulerOptions

	mu       sync.Mutex
	entries  []*scheduleEntry
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	tasks sync.WaitGroup
}

type scheduleEntry struct {
	name     string
	trigger  string
	schedule cron.Schedule
	task     Task

	running    bool
	draining   bool
	next       time.Time
	lastStart  time.Time
	lastFinish time.Time
	lastErr    string
	runs       int
	skipped    int
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Scheduler{clock: opts.Clock, opts: opts}
}

// RegisterDaily schedules task to run every day at the given time.
func (s *Scheduler) RegisterDaily(name string, task Task, at model.TimeOfDay) error {
	spec := fmt.Sprintf("%d %d * * *", at.Minute, at.Hour)
	return s.register(name, "daily at "+at.String(), spec, task)
}

// RegisterWeekly schedules task to run every week on the given day and time.
func (s *Scheduler) RegisterWeekly(name string, task Task, day time.Weekday, at model.TimeOfDay) error {
	spec := fmt.Sprintf("%d %d * * %d", at.Minute, at.Hour, int(day))
	return s.register(name, fmt.Sprintf("weekly on %s at %s", day, at), spec, task)
}

func (s *Scheduler) register(name, trigger, spec string, task Task) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse trigger for %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.name == name {
			return fmt.Errorf("task %q already registered", name)
		}
	}

	e := &scheduleEntry{
		name:     name,
		trigger:  trigger,
		schedule: schedule,
		task:     task,
		next:     schedule.Next(s.clock.Now().In(s.opts.Location)),
	}
	s.entries = append(s.entries, e)

	slog.Info("task scheduled", "task", name, "trigger", trigger, "next_run", e.next)

	return nil
}

// Start launches the clock loop. It returns immediately. Cancelling ctx
// stops the loop but not in-flight tasks; use Stop for an orderly shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		slog.Warn("scheduler already started")
		return
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	go s.loop(loopCtx)

	slog.Info("scheduler started", "tasks", len(s.entries), "check_interval", s.opts.CheckInterval)
}

// Stop halts the clock loop and waits up to StopTimeout for in-flight tasks.
// Tasks still running after that are left to finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		slog.Warn("scheduler stop ignored: not running")
		return
	}
	s.stopped = true
	cancel, loopDone := s.cancel, s.loopDone
	s.mu.Unlock()

	cancel()
	<-loopDone

	idle := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(idle)
	}()

	timer := s.clock.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-idle:
		slog.Info("scheduler stopped")
	case <-timer.Chan():
		slog.Warn("scheduler stopped with tasks still running", "waited", s.opts.StopTimeout)
	}
}

// Entries returns a snapshot of every registered task.
func (s *Scheduler) Entries() []model.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ScheduleEntry, 0, len(s.entries))
	for _, e := range s.entries {
		state := model.ScheduleIdle
		if e.running {
			state = model.ScheduleRunning
		}
		out = append(out, model.ScheduleEntry{
			Name:       e.name,
			Trigger:    e.trigger,
			State:      state,
			NextRun:    e.next,
			LastStart:  e.lastStart,
			LastFinish: e.lastFinish,
			LastError:  e.lastErr,
			Runs:       e.runs,
			Skipped:    e.skipped,
			Draining:   e.draining,
		})
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := s.clock.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			s.tick(ctx, now)
		}
	}
}

// tick fires every entry whose trigger time has passed. A due entry that is
// still busy is skipped and its trigger moves to the next occurrence.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		e.next = e.schedule.Next(now.In(s.opts.Location))

		if e.running || e.draining {
			e.skipped++
			slog.Warn("skipping scheduled task: previous run still in progress",
				"task", e.name,
				"started", e.lastStart,
				"next_run", e.next,
			)
			continue
		}

		e.running = true
		e.lastStart = now
		e.runs++
		s.tasks.Add(1)
		go s.invoke(ctx, e)
	}
}

// invoke runs one task invocation under the ceiling. The task context is
// detached from the loop so Stop never aborts a running task.
func (s *Scheduler) invoke(parent context.Context, e *scheduleEntry) {
	defer s.tasks.Done()

	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	defer cancel(nil)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("task panicked: %v", r)
			}
		}()
		done <- e.task(ctx)
	}()

	slog.Info("scheduled task started", "task", e.name)
	start := s.clock.Now()

	timer := s.clock.NewTimer(s.opts.TaskTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		s.finish(e, err, start)
	case <-timer.Chan():
		cancel(errTaskTimeout)
		s.timedOut(e, start)

		// The task body may ignore cancellation; keep the entry suppressed
		// until it actually returns.
		err := <-done
		s.mu.Lock()
		e.draining = false
		s.mu.Unlock()
		slog.Warn("timed-out task finally returned", "task", e.name, "error", err)
	}
}

func (s *Scheduler) finish(e *scheduleEntry, err error, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.running = false
	e.lastFinish = s.clock.Now()
	duration := e.lastFinish.Sub(start)

	if err != nil {
		e.lastErr = err.Error()
		slog.Error("scheduled task failed", "task", e.name, "duration", duration, "error", err)
		return
	}

	e.lastErr = ""
	slog.Info("scheduled task finished", "task", e.name, "duration", duration)
}

func (s *Scheduler) timedOut(e *scheduleEntry, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.running = false
	e.draining = true
	e.lastFinish = s.clock.Now()
	e.lastErr = errTaskTimeout.Error()

	slog.Error("scheduled task failed",
		"task", e.name,
		"duration", e.lastFinish.Sub(start),
		"error", errTaskTimeout,
	)
}
