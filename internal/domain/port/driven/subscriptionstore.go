package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// Sentinel errors returned by SubscriptionStore implementations.
var (
	// ErrSubscriptionNotFound indicates the requested subscription does not exist.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSubscriptionExists indicates an active subscription for the same
	// repository already exists.
	ErrSubscriptionExists = errors.New("subscription already exists")
)

// SubscriptionStore defines the driven port for subscription persistence.
// UpdateLastChecked never moves a checkpoint backwards.
type SubscriptionStore interface {
	Add(ctx context.Context, sub model.Subscription) error
	Get(ctx context.Context, id string) (*model.Subscription, error)
	ListAll(ctx context.Context) ([]model.Subscription, error)
	ListActive(ctx context.Context) ([]model.Subscription, error)
	// ListByFrequency returns active subscriptions taking part in scans of period p.
	ListByFrequency(ctx context.Context, p model.Period) ([]model.Subscription, error)
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	UpdateLastChecked(ctx context.Context, ids []string, at time.Time) error
}
