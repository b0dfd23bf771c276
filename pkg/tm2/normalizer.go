package tm2

import (
	"strings"
	"time"
	"unicode"

	"github.com/tm2health/platform/pkg/common/models"
	"github.com/tm2health/platform/pkg/terminology"
)

// Normalizer canonicalizes field values record by record. It never
// rejects anything; values it cannot improve pass through for the
// Validator to judge.
type Normalizer struct {
	opts       Options
	translator *terminology.Translator
}

// NewNormalizer builds a Normalizer. The translator may be nil, in which
// case native-language terms pass through untranslated.
func NewNormalizer(opts Options, tr *terminology.Translator) *Normalizer {
	return &Normalizer{opts: opts, translator: tr}
}

// Normalize returns a normalized copy of rec. The input is not modified.
// Applying Normalize to its own output yields the same record.
func (n *Normalizer) Normalize(rec models.TM2Record) models.TM2Record {
	out := rec
	out.PatientID = cleanSpace(rec.PatientID)
	out.PractitionerID = cleanSpace(rec.PractitionerID)
	out.TM2Code = strings.ToUpper(cleanSpace(rec.TM2Code))
	out.ConditionName = n.conditionName(cleanSpace(rec.ConditionName))
	out.SystemType = n.systemType(cleanSpace(rec.SystemType))
	out.Severity = n.severity(cleanSpace(rec.Severity))
	out.DiagnosisDate = n.diagnosisDate(cleanSpace(rec.DiagnosisDate))

	if out.PatientID != rec.PatientID ||
		out.TM2Code != rec.TM2Code ||
		out.ConditionName != rec.ConditionName ||
		out.SystemType != rec.SystemType ||
		out.Severity != rec.Severity ||
		out.DiagnosisDate != rec.DiagnosisDate ||
		out.PractitionerID != rec.PractitionerID {
		out.WasNormalized = true
	}
	return out
}

func (n *Normalizer) conditionName(name string) string {
	if name == "" {
		return name
	}
	if n.translator != nil {
		name = n.translator.Condition(name)
	}
	name = titleCase(name)
	if n.translator != nil {
		// Resolve again after casing so curated spellings such as
		// COVID-19 replace the title-cased form.
		name = n.translator.Condition(name)
	}
	return name
}

func (n *Normalizer) systemType(system string) string {
	if system == "" {
		return system
	}
	if n.translator != nil {
		system = n.translator.SystemType(system)
	}
	return canonicalize(system, n.opts.SystemTypes)
}

func (n *Normalizer) severity(severity string) string {
	if severity == "" {
		return severity
	}
	if n.translator != nil {
		severity = n.translator.Severity(severity)
	}
	return canonicalize(severity, n.opts.Severities)
}

func (n *Normalizer) diagnosisDate(value string) string {
	if value == "" {
		return value
	}
	for _, layout := range n.opts.DateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}

func cleanSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		words[i] = string(unicode.ToUpper(r[0])) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(words, " ")
}

func canonicalize(value string, allowed []string) string {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return a
		}
	}
	return value
}
