package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UnknownOlympus/pinpoint/internal/audit"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
)

// CommandAudit labels audit runs.
const CommandAudit = "audit"

// AuditOptions tunes an audit.
type AuditOptions struct {
	Radius   float64 // Meters under which two entities count as close.
	Decimals int     // Rounding used to group identical coordinates.
	Clean    bool    // Clear duplicated place identifiers from all but their first holder.
	Envelope spatial.Envelope
}

// AuditResult is everything an audit found.
type AuditResult struct {
	DuplicatePlaceIDs  []audit.PlaceGroup
	CoordinateClusters []audit.Cluster
	ClosePairs         []audit.Pair
	Issues             []repository.Issue
	Cleared            []audit.Holder
}

// AuditService checks the datasets for duplicates and malformed entries.
type AuditService struct {
	*Runner
	opts AuditOptions
}

// NewAuditService creates an audit service.
func NewAuditService(runner *Runner, opts AuditOptions) *AuditService {
	if opts.Radius <= 0 {
		opts.Radius = audit.DefaultRadius
	}
	if opts.Decimals <= 0 {
		opts.Decimals = audit.DefaultDecimals
	}
	return &AuditService{Runner: runner, opts: opts}
}

// Run audits the datasets together, since duplicates are searched across files.
func (s *AuditService) Run(ctx context.Context, specs []repository.DatasetSpec) (*AuditResult, error) {
	datasets, loadErr := s.LoadAll(ctx, specs)
	if loadErr != nil && !errors.Is(loadErr, ErrDatasetsFailed) {
		return nil, loadErr
	}

	result := &AuditResult{
		DuplicatePlaceIDs:  audit.DuplicatePlaceIDs(datasets),
		CoordinateClusters: audit.CoordinateClusters(datasets, s.opts.Decimals),
		ClosePairs:         audit.ClosePairs(datasets, s.opts.Radius),
	}
	for _, ds := range datasets {
		result.Issues = append(result.Issues, repository.Validate(ds, s.opts.Envelope)...)
	}
	s.log.InfoContext(ctx, "Audit finished",
		"datasets", len(datasets),
		"duplicate_place_ids", len(result.DuplicatePlaceIDs),
		"coordinate_clusters", len(result.CoordinateClusters),
		"close_pairs", len(result.ClosePairs),
		"issues", len(result.Issues))

	if !s.opts.Clean {
		return result, loadErr
	}

	result.Cleared = audit.CleanDuplicatePlaceIDs(datasets)
	perDataset := make(map[string]int)
	for _, h := range result.Cleared {
		perDataset[h.Dataset]++
		s.log.InfoContext(ctx, "Cleared duplicate place identifier",
			"dataset", h.Dataset, "name", h.Name, "place_id", h.PlaceID)
	}

	var failed []string
	for _, ds := range datasets {
		if err := s.commit(ctx, ds, perDataset[ds.Name()]); err != nil {
			s.log.ErrorContext(ctx, "Failed to save dataset", "dataset", ds.Name(), "error", err)
			failed = append(failed, ds.Name())
		}
	}
	if len(failed) > 0 {
		return result, fmt.Errorf("%w: %s", ErrDatasetsFailed, strings.Join(failed, ", "))
	}
	return result, loadErr
}
