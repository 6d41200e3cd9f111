package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
)

// JSONBSeries stores a coherence series in a PostgreSQL JSONB column
type JSONBSeries coherence.Series

// Value implements driver.Valuer interface
func (s JSONBSeries) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner interface
func (s *JSONBSeries) Scan(value interface{}) error {
	return scanJSONB(value, s)
}

// JSONBRegions stores anomaly regions in a PostgreSQL JSONB column
type JSONBRegions []coherence.Region

// Value implements driver.Valuer interface
func (r JSONBRegions) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner interface
func (r *JSONBRegions) Scan(value interface{}) error {
	return scanJSONB(value, r)
}

// JSONBWarnings stores analysis warnings in a PostgreSQL JSONB column
type JSONBWarnings []coherence.Warning

// Value implements driver.Valuer interface
func (w JSONBWarnings) Value() (driver.Value, error) {
	if w == nil {
		return nil, nil
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner interface
func (w *JSONBWarnings) Scan(value interface{}) error {
	return scanJSONB(value, w)
}

func scanJSONB(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dest)
}

// AnalysisRun is the persisted form of one coherence analysis. Summary
// figures are flattened into columns for querying; the full series and
// region list ride along as JSONB.
type AnalysisRun struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Target      string        `json:"target" db:"target"`
	Source      string        `json:"source" db:"source"`
	Instrument  string        `json:"instrument" db:"instrument"`
	WindowSize  int           `json:"window" db:"window_size"`
	StepSize    int           `json:"step" db:"step_size"`
	Threshold   float64       `json:"threshold" db:"threshold"`
	Fingerprint string        `json:"fingerprint" db:"fingerprint"`
	MeanCIndex  float64       `json:"mean_c_index" db:"mean_c_index"`
	StdCIndex   float64       `json:"std_c_index" db:"std_c_index"`
	MinCIndex   float64       `json:"min_c_index" db:"min_c_index"`
	MaxCIndex   float64       `json:"max_c_index" db:"max_c_index"`
	CV          float64       `json:"cv" db:"cv"`
	WindowCount int           `json:"window_count" db:"window_count"`
	RegionCount int           `json:"region_count" db:"region_count"`
	Grade       string        `json:"grade" db:"grade"`
	Series      JSONBSeries   `json:"series" db:"series"`
	Regions     JSONBRegions  `json:"regions" db:"regions"`
	Warnings    JSONBWarnings `json:"warnings,omitempty" db:"warnings"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// NewRunFromReport flattens a coherence report into its persisted form.
func NewRunFromReport(report coherence.Report) *AnalysisRun {
	id, err := uuid.Parse(report.RunID.String())
	if err != nil {
		id = uuid.New()
	}
	return &AnalysisRun{
		ID:          id,
		Target:      report.Target,
		Source:      report.Source,
		Instrument:  report.Instrument,
		WindowSize:  report.Params.Window,
		StepSize:    report.Params.Step,
		Threshold:   report.Threshold,
		Fingerprint: report.Fingerprint.String(),
		MeanCIndex:  report.Summary.Mean,
		StdCIndex:   report.Summary.Std,
		MinCIndex:   report.Summary.Min,
		MaxCIndex:   report.Summary.Max,
		CV:          report.Summary.CV,
		WindowCount: report.Summary.N,
		RegionCount: len(report.Regions),
		Grade:       string(report.Grade),
		Series:      JSONBSeries(report.Series),
		Regions:     JSONBRegions(report.Regions),
		Warnings:    JSONBWarnings(report.Warnings),
		CreatedAt:   report.CreatedAt.Time(),
	}
}

// ToReport rebuilds the report form for rendering stored runs. Derived
// summary fields that are not stored as columns (percentiles, suggested
// threshold) are left zero; they can be recomputed from the series.
func (r *AnalysisRun) ToReport() coherence.Report {
	return coherence.Report{
		RunID:       core.RunID(r.ID.String()),
		Target:      r.Target,
		Source:      r.Source,
		Instrument:  r.Instrument,
		Params:      coherence.Params{Window: r.WindowSize, Step: r.StepSize},
		Threshold:   r.Threshold,
		Fingerprint: core.Hash(r.Fingerprint),
		Series:      coherence.Series(r.Series),
		Summary: coherence.Summary{
			Mean: r.MeanCIndex,
			Std:  r.StdCIndex,
			Min:  r.MinCIndex,
			Max:  r.MaxCIndex,
			CV:   r.CV,
			N:    r.WindowCount,
		},
		Regions:   []coherence.Region(r.Regions),
		Grade:     coherence.QualityGrade(r.Grade),
		Warnings:  []coherence.Warning(r.Warnings),
		CreatedAt: core.NewTimestamp(r.CreatedAt),
	}
}
