package model

import "time"

// BudgetUsage is a snapshot of the client-side hourly call budget.
type BudgetUsage struct {
	Used        int
	Limit       int
	WindowStart time.Time
	ResetsAt    time.Time
}

// Remaining returns how many calls are left in the current window.
func (b BudgetUsage) Remaining() int {
	return max(b.Limit-b.Used, 0)
}

// RateLimitStatus is the upstream's own view of the core REST quota.
type RateLimitStatus struct {
	Limit     int
	Remaining int
	Used      int
	Reset     time.Time
}
