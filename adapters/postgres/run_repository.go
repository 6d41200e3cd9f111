package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"speccoh/domain/core"
	"speccoh/models"
	"speccoh/ports"
)

// RunRepositoryImpl implements RunRepository for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// SaveRun stores a completed analysis run
func (r *RunRepositoryImpl) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	// JSONB columns implement driver.Valuer and convert automatically
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			id, target, source, instrument,
			window_size, step_size, threshold, fingerprint,
			mean_c_index, std_c_index, min_c_index, max_c_index, cv,
			window_count, region_count, grade,
			series, regions, warnings, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, run.ID, run.Target, run.Source, run.Instrument,
		run.WindowSize, run.StepSize, run.Threshold, run.Fingerprint,
		run.MeanCIndex, run.StdCIndex, run.MinCIndex, run.MaxCIndex, run.CV,
		run.WindowCount, run.RegionCount, run.Grade,
		run.Series, run.Regions, run.Warnings, run.CreatedAt)

	return err
}

// GetRun retrieves a run by ID
func (r *RunRepositoryImpl) GetRun(ctx context.Context, id core.RunID) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	err := r.db.GetContext(ctx, &run, `
		SELECT id, target, source, instrument,
		       window_size, step_size, threshold, fingerprint,
		       mean_c_index, std_c_index, min_c_index, max_c_index, cv,
		       window_count, region_count, grade,
		       series, regions, warnings, created_at
		FROM analysis_runs
		WHERE id = $1
	`, id.String())

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("run", id.String())
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first
func (r *RunRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}

	var runs []*models.AnalysisRun
	err := r.db.SelectContext(ctx, &runs, `
		SELECT id, target, source, instrument,
		       window_size, step_size, threshold, fingerprint,
		       mean_c_index, std_c_index, min_c_index, max_c_index, cv,
		       window_count, region_count, grade,
		       series, regions, warnings, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)

	if err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteRun removes a run
func (r *RunRepositoryImpl) DeleteRun(ctx context.Context, id core.RunID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM analysis_runs WHERE id = $1
	`, id.String())
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError("run", id.String())
	}
	return nil
}
