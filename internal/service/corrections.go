package service

import (
	"context"
	"fmt"
	"math"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
)

// CommandApply labels runs that apply a verification report.
const CommandApply = "apply"

// CorrectionLimits rejects corrections that more likely point at a different
// place than at a better location of the same one.
type CorrectionLimits struct {
	MaxDistance float64          // Meters.
	MaxDegrees  float64          // Largest change of either axis.
	Envelope    spatial.Envelope // Corrected coordinates must fall inside. Zero disables the check.
}

// DefaultCorrectionLimits returns the limits used when nothing is configured.
func DefaultCorrectionLimits(envelope spatial.Envelope) CorrectionLimits {
	return CorrectionLimits{MaxDistance: 50000, MaxDegrees: 2, Envelope: envelope}
}

// Check returns why a correction should not be applied, or "" when it is acceptable.
func (l CorrectionLimits) Check(d Discrepancy) string {
	current := models.Coordinates{Latitude: d.Current[0], Longitude: d.Current[1]}
	google := models.Coordinates{Latitude: d.Google[0], Longitude: d.Google[1]}

	distance := d.DistanceM
	if distance == 0 {
		distance = spatial.Distance(current, google)
	}

	switch {
	case l.MaxDistance > 0 && distance > l.MaxDistance:
		return fmt.Sprintf("%.0fm difference, likely a different place", distance)
	case !l.Envelope.IsZero() && !l.Envelope.Contains(google):
		return fmt.Sprintf("corrected coordinates %.3f,%.3f are outside the region", google.Latitude, google.Longitude)
	case l.MaxDegrees > 0 && (math.Abs(current.Latitude-google.Latitude) > l.MaxDegrees ||
		math.Abs(current.Longitude-google.Longitude) > l.MaxDegrees):
		return "correction moves the entity too far from its original location"
	}
	return ""
}

// CorrectionService applies the discrepancies of a verification report without
// calling any provider.
type CorrectionService struct {
	*Runner
	limits CorrectionLimits
}

// NewCorrectionService creates a correction service.
func NewCorrectionService(runner *Runner, limits CorrectionLimits) *CorrectionService {
	return &CorrectionService{Runner: runner, limits: limits}
}

// ApplyCorrections moves every entity named in the report to the coordinates the
// report recorded. Entities are matched by name within their dataset; reports
// without dataset names are matched by dataset context.
func (s *CorrectionService) ApplyCorrections(
	ctx context.Context,
	report *Report,
	specs []repository.DatasetSpec,
) (*Report, error) {
	result := NewReport(CommandApply, s.dryRun, s.now())
	stats := result.Stats

	matched := make(map[int]bool, len(report.Discrepancies))
	var selected []repository.DatasetSpec
	for _, spec := range specs {
		if len(s.forDataset(report, spec)) > 0 {
			selected = append(selected, spec)
		}
	}

	err := s.forEachEntity(ctx, selected, func(ctx context.Context, ds *repository.Dataset, ent *models.Entity) (bool, error) {
		for _, idx := range s.forDataset(report, ds.Spec) {
			d := report.Discrepancies[idx]
			if matched[idx] || d.Name != ent.Name || (d.PlaceID != "" && ent.PlaceID != "" && d.PlaceID != ent.PlaceID) {
				continue
			}
			matched[idx] = true
			return s.apply(ctx, ds, ent, d, stats), nil
		}
		return false, nil
	})

	for idx, d := range report.Discrepancies {
		if !matched[idx] {
			stats.NotFound++
			stats.Failures = append(stats.Failures, Failure{
				Dataset: d.Dataset,
				Name:    d.Name,
				Reason:  "entity not found in any dataset",
				Status:  statusNotFound,
			})
			s.log.WarnContext(ctx, "✗ "+d.Name, "dataset", d.Dataset, "status", statusNotFound)
		}
	}

	result.Discrepancies = append(result.Discrepancies, report.Discrepancies...)
	result.Finish(s.now())
	stats.Log(ctx, s.log, CommandApply)
	return result, err
}

func (s *CorrectionService) apply(
	ctx context.Context,
	ds *repository.Dataset,
	ent *models.Entity,
	d Discrepancy,
	stats *Stats,
) bool {
	stats.Processed++

	if reason := s.limits.Check(d); reason != "" {
		stats.Skipped++
		s.done(ctx, CommandApply, ds, ent, statusSkipped, "reason", reason)
		return false
	}

	ent.SetCoordinates(models.Coordinates{Latitude: d.Google[0], Longitude: d.Google[1]})
	stats.CoordinatesUpdated++
	s.done(ctx, CommandApply, ds, ent, statusCorrected,
		"from", fmt.Sprintf("%.6f,%.6f", d.Current[0], d.Current[1]),
		"to", fmt.Sprintf("%.6f,%.6f", d.Google[0], d.Google[1]),
		"distance_m", int(d.DistanceM))
	return true
}

// forDataset returns the indexes of the discrepancies that belong to a dataset.
func (s *CorrectionService) forDataset(report *Report, spec repository.DatasetSpec) []int {
	var idx []int
	for i, d := range report.Discrepancies {
		switch {
		case d.Dataset != "" && d.Dataset == spec.Name():
		case d.Dataset == "" && d.Type != "" && d.Type == spec.Context:
		default:
			continue
		}
		idx = append(idx, i)
	}
	return idx
}
