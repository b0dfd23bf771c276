package tm2

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultColumns returns the required column names, in file order.
func DefaultColumns() []string {
	return []string{
		"patient_id",
		"tm2_code",
		"condition_name",
		"system_type",
		"severity",
		"diagnosis_date",
		"practitioner_id",
	}
}

// Options carries the cleaning rules shared by the Normalizer, Validator
// and Aggregator. The zero value is not usable; start from DefaultOptions.
type Options struct {
	Columns          []string `yaml:"columns" json:"columns"`
	CodePattern      string   `yaml:"code_pattern" json:"code_pattern"`
	Severities       []string `yaml:"severities" json:"severities"`
	SystemTypes      []string `yaml:"system_types" json:"system_types"`
	DateFormats      []string `yaml:"date_formats" json:"date_formats"`
	MinDiagnosisDate string   `yaml:"min_diagnosis_date" json:"min_diagnosis_date"`
	MaxFutureDays    int      `yaml:"max_future_days" json:"max_future_days"`
	Workers          int      `yaml:"workers" json:"workers"`
}

// DefaultOptions returns the rules used when no cleaning config is supplied.
func DefaultOptions() Options {
	return Options{
		Columns:          DefaultColumns(),
		CodePattern:      `^TM2\.[A-Z][0-9]{2}\.[0-9]{2}$`,
		Severities:       []string{"Mild", "Moderate", "Severe", "Critical"},
		SystemTypes:      []string{"Ayurveda", "Siddha", "Unani", "Homeopathy"},
		DateFormats:      []string{"2006-01-02", "01/02/2006", "02-01-2006"},
		MinDiagnosisDate: "1900-01-01",
		MaxFutureDays:    1,
		Workers:          4,
	}
}

// LoadOptions reads cleaning rules from a YAML file, filling omitted
// fields from the defaults. An empty path returns the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}
	content, err := ioutil.ReadFile(filepath.Clean(path))
	if err != nil {
		return opts, fmt.Errorf("read cleaning options: %w", err)
	}
	if err := yaml.Unmarshal(content, &opts); err != nil {
		return Options{}, fmt.Errorf("parse cleaning options: %w", err)
	}
	return opts, nil
}
