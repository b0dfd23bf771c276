package tm2

import (
	"math"
	"time"

	"github.com/tm2health/platform/pkg/common/models"
)

// Quality score weights. The formula
// 100 * (0.5*validity + 0.3*uniqueness + 0.2*completeness)
// is a stable contract; identical input always scores identically.
const (
	validityWeight     = 0.5
	uniquenessWeight   = 0.3
	completenessWeight = 0.2
)

// otherBucket collects severity and system type values outside the
// configured enumerations, including empty ones.
const otherBucket = "other"

// Aggregator computes batch-level quality statistics over every loaded
// record, not only the valid ones.
type Aggregator struct {
	opts Options
}

func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{opts: opts}
}

func (a *Aggregator) Aggregate(outcomes []models.ValidationOutcome, decisions []models.DedupDecision) models.DataQualityStatistics {
	stats := models.DataQualityStatistics{
		TotalRecords:           len(outcomes),
		FieldCompleteness:      make(map[string]float64, len(a.opts.Columns)),
		SeverityDistribution:   make(map[string]int),
		SystemTypeDistribution: make(map[string]int),
	}

	filled := make(map[string]int, len(a.opts.Columns))
	for _, outcome := range outcomes {
		rec := outcome.Record
		if outcome.IsValid {
			stats.ValidRecords++
		} else {
			stats.InvalidRecords++
		}

		for _, col := range a.opts.Columns {
			if fieldValue(rec, col) != "" {
				filled[col]++
			}
		}
		stats.SeverityDistribution[bucket(rec.Severity, a.opts.Severities)]++
		stats.SystemTypeDistribution[bucket(rec.SystemType, a.opts.SystemTypes)]++

		if !outcome.IsValid {
			continue
		}
		t, err := time.Parse("2006-01-02", rec.DiagnosisDate)
		if err != nil {
			continue
		}
		if stats.EarliestDiagnosis == nil || t.Before(*stats.EarliestDiagnosis) {
			earliest := t
			stats.EarliestDiagnosis = &earliest
		}
		if stats.LatestDiagnosis == nil || t.After(*stats.LatestDiagnosis) {
			latest := t
			stats.LatestDiagnosis = &latest
		}
	}

	for _, decision := range decisions {
		if decision.IsDuplicate {
			stats.DuplicateRecords++
		}
	}
	stats.UniqueRecords = stats.ValidRecords - stats.DuplicateRecords

	var completenessSum float64
	for _, col := range a.opts.Columns {
		fraction := 0.0
		if stats.TotalRecords > 0 {
			fraction = float64(filled[col]) / float64(stats.TotalRecords)
		}
		completenessSum += fraction
		stats.FieldCompleteness[col] = round2(fraction * 100)
	}

	if stats.TotalRecords > 0 {
		validityRate := float64(stats.ValidRecords) / float64(stats.TotalRecords)
		uniquenessRate := 0.0
		if stats.ValidRecords > 0 {
			uniquenessRate = float64(stats.UniqueRecords) / float64(stats.ValidRecords)
		}
		avgCompleteness := 0.0
		if len(a.opts.Columns) > 0 {
			avgCompleteness = completenessSum / float64(len(a.opts.Columns))
		}
		score := validityWeight*validityRate + uniquenessWeight*uniquenessRate + completenessWeight*avgCompleteness
		stats.QualityScore = round2(score * 100)
	}

	return stats
}

func bucket(value string, allowed []string) string {
	for _, a := range allowed {
		if value == a {
			return a
		}
	}
	return otherBucket
}

func fieldValue(rec models.TM2Record, column string) string {
	switch column {
	case "patient_id":
		return rec.PatientID
	case "tm2_code":
		return rec.TM2Code
	case "condition_name":
		return rec.ConditionName
	case "system_type":
		return rec.SystemType
	case "severity":
		return rec.Severity
	case "diagnosis_date":
		return rec.DiagnosisDate
	case "practitioner_id":
		return rec.PractitionerID
	default:
		return ""
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
