package ports

import (
	"context"

	"speccoh/domain/core"
	"speccoh/models"
)

// RunRepository defines the interface for persisting analysis runs. The
// core never persists anything itself; persistence is an optional adapter
// the services use when configured.
type RunRepository interface {
	// SaveRun stores a completed analysis run
	SaveRun(ctx context.Context, run *models.AnalysisRun) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, id core.RunID) (*models.AnalysisRun, error)

	// ListRuns returns the most recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error)

	// DeleteRun removes a run
	DeleteRun(ctx context.Context, id core.RunID) error
}
