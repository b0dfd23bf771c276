package tm2

import (
	"fmt"
	"regexp"
	"time"

	"github.com/tm2health/platform/pkg/common/models"
)

// Violation reasons attached to invalid records.
const (
	ReasonInvalidCodeFormat = "invalid_code_format"
	ReasonInvalidSeverity   = "invalid_severity"
	ReasonInvalidDate       = "invalid_date"
)

// Validator classifies normalized records. Invalid records are kept
// with their reasons, never discarded.
type Validator struct {
	codeRe     *regexp.Regexp
	severities map[string]struct{}
	minDate    time.Time
	maxFuture  time.Duration
	now        func() time.Time
}

func NewValidator(opts Options) (*Validator, error) {
	re, err := regexp.Compile(opts.CodePattern)
	if err != nil {
		return nil, fmt.Errorf("compile code pattern: %w", err)
	}
	minDate, err := time.Parse("2006-01-02", opts.MinDiagnosisDate)
	if err != nil {
		return nil, fmt.Errorf("parse min diagnosis date: %w", err)
	}

	severities := make(map[string]struct{}, len(opts.Severities))
	for _, s := range opts.Severities {
		severities[s] = struct{}{}
	}

	return &Validator{
		codeRe:     re,
		severities: severities,
		minDate:    minDate,
		maxFuture:  time.Duration(opts.MaxFutureDays) * 24 * time.Hour,
		now:        time.Now,
	}, nil
}

// Validate checks one normalized record. A missing field suppresses that
// field's format check; all other reasons accumulate.
func (v *Validator) Validate(rec models.TM2Record) models.ValidationOutcome {
	var reasons []string

	if rec.PatientID == "" {
		reasons = append(reasons, "missing_patient_id")
	}
	codeMissing := rec.TM2Code == ""
	if codeMissing {
		reasons = append(reasons, "missing_tm2_code")
	}
	dateMissing := rec.DiagnosisDate == ""
	if dateMissing {
		reasons = append(reasons, "missing_diagnosis_date")
	}
	if rec.PractitionerID == "" {
		reasons = append(reasons, "missing_practitioner_id")
	}

	if !codeMissing && !v.codeRe.MatchString(rec.TM2Code) {
		reasons = append(reasons, ReasonInvalidCodeFormat)
	}
	if _, ok := v.severities[rec.Severity]; !ok {
		reasons = append(reasons, ReasonInvalidSeverity)
	}
	if !dateMissing && !v.dateInRange(rec.DiagnosisDate) {
		reasons = append(reasons, ReasonInvalidDate)
	}

	return models.ValidationOutcome{
		Record:  rec,
		IsValid: len(reasons) == 0,
		Reasons: reasons,
	}
}

func (v *Validator) dateInRange(value string) bool {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return false
	}
	if t.Before(v.minDate) {
		return false
	}
	return !t.After(v.now().Add(v.maxFuture))
}
