package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/fsutil"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Discrepancy is a resolved entity whose stored coordinates disagree with the
// provider's authoritative location.
type Discrepancy struct {
	Dataset   string     `json:"dataset,omitempty"`
	Name      string     `json:"name"`
	Type      string     `json:"type,omitempty"` // Dataset context, e.g. "waterfall".
	PlaceID   string     `json:"place_id,omitempty"`
	Current   [2]float64 `json:"current"`
	Google    [2]float64 `json:"google"`
	DistanceM float64    `json:"distance_m"`
}

// Report is the JSON summary of a run.
type Report struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Command       string        `json:"command"`
	DryRun        bool          `json:"dry_run"`
	Stats         *Stats        `json:"stats"`
	Failures      []Failure     `json:"failures"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// NewReport starts the report of a run.
func NewReport(command string, dryRun bool, started time.Time) *Report {
	return &Report{
		RunID:         uuid.NewString(),
		StartedAt:     started.UTC(),
		Command:       command,
		DryRun:        dryRun,
		Stats:         &Stats{},
		Failures:      []Failure{},
		Discrepancies: []Discrepancy{},
	}
}

// Finish stamps the end of the run and copies the failures out of the stats.
func (r *Report) Finish(finished time.Time) {
	r.FinishedAt = finished.UTC()
	if len(r.Stats.Failures) > 0 {
		r.Failures = append(r.Failures[:0], r.Stats.Failures...)
	}
}

// WriteReport stores a report as indented JSON.
func WriteReport(fs afero.Fs, path string, r *Report) error {
	if err := fsutil.WriteJSON(fs, path, r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport. A bare array of
// discrepancies, as written by older verification tools, is accepted as well.
func ReadReport(fs afero.Fs, path string) (*Report, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var discrepancies []Discrepancy
		if err = json.Unmarshal(trimmed, &discrepancies); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		return &Report{Command: "verify", Stats: &Stats{}, Discrepancies: discrepancies}, nil
	}

	var report Report
	if err = json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if report.Stats == nil {
		report.Stats = &Stats{}
	}
	return &report, nil
}
