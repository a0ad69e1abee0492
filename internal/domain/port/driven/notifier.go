package driven

import (
	"context"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// Notifier delivers a report to the channels configured on the given
// subscriptions. Delivery is best-effort; the returned error joins every
// per-target failure.
type Notifier interface {
	Notify(ctx context.Context, report model.Report, subs []model.Subscription) error
}
