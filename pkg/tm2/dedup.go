package tm2

import (
	"strings"

	"github.com/tm2health/platform/pkg/common/models"
)

// DedupKey derives the identity of a record's clinical fact. Two records
// with the same key describe the same diagnosis regardless of cosmetic
// differences in the remaining fields.
func DedupKey(rec models.TM2Record) string {
	return strings.ToLower(strings.Join([]string{
		rec.PatientID,
		rec.TM2Code,
		rec.DiagnosisDate,
		rec.PractitionerID,
	}, "|"))
}

// Deduplicate classifies records in the given order. The first record
// for a key wins; every later record with the same key is marked as a
// duplicate of it. Callers pass valid records in ascending source row
// order so first-occurrence is well defined.
func Deduplicate(records []models.TM2Record) []models.DedupDecision {
	decisions := make([]models.DedupDecision, 0, len(records))
	firstSeen := make(map[string]int, len(records))

	for _, rec := range records {
		key := DedupKey(rec)
		if row, ok := firstSeen[key]; ok {
			decisions = append(decisions, models.DedupDecision{
				Record:       rec,
				IsDuplicate:  true,
				DedupKey:     key,
				FirstSeenRow: row,
			})
			continue
		}
		firstSeen[key] = rec.SourceRow
		decisions = append(decisions, models.DedupDecision{
			Record:   rec,
			DedupKey: key,
		})
	}
	return decisions
}
