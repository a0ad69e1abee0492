package github

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// callBudget caps the number of upstream calls per window. Every attempt is
// counted, whatever its outcome. When the cap is reached, acquire blocks
// until the window rolls over instead of failing.
type callBudget struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	limit       int
	window      time.Duration
	windowStart time.Time
	used        int
}

func newCallBudget(clock clockwork.Clock, limit int, window time.Duration) *callBudget {
	return &callBudget{
		clock:       clock,
		limit:       limit,
		window:      window,
		windowStart: clock.Now(),
	}
}

// acquire reserves one call, waiting for the next window if the current one
// is spent. Returns an error only if ctx is cancelled while waiting.
func (b *callBudget) acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.clock.Now()
		if now.Sub(b.windowStart) >= b.window {
			b.windowStart = now
			b.used = 0
		}
		if b.limit <= 0 || b.used < b.limit {
			b.used++
			b.mu.Unlock()
			return nil
		}
		wait := b.windowStart.Add(b.window).Sub(now)
		b.mu.Unlock()

		slog.Warn("github call budget exhausted, waiting for window reset",
			"limit", b.limit,
			"wait", wait.Round(time.Second),
		)

		select {
		case <-b.clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *callBudget) usage() model.BudgetUsage {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := b.used
	start := b.windowStart
	if b.clock.Now().Sub(start) >= b.window {
		used = 0
		start = b.clock.Now()
	}

	return model.BudgetUsage{
		Used:        used,
		Limit:       b.limit,
		WindowStart: start,
		ResetsAt:    start.Add(b.window),
	}
}

// budgetTransport charges every outgoing request against a callBudget. It
// sits below the cache so fresh cache hits are free.
type budgetTransport struct {
	budget *callBudget
	base   http.RoundTripper
}

func (t *budgetTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.budget.acquire(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
