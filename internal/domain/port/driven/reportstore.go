package driven

import (
	"context"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// ReportStore defines the driven port for rendered report persistence.
type ReportStore interface {
	// Save persists the report and returns its assigned ID.
	Save(ctx context.Context, report model.Report) (int64, error)
	// ListRecent returns up to limit reports, newest first. Updates are not loaded.
	ListRecent(ctx context.Context, limit int) ([]model.Report, error)
}
