package dlp

import (
	"errors"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Mask     string `yaml:"mask" json:"mask"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Severity string `yaml:"severity" json:"severity"`
}

type RulesConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// LoadRules reads masking rules from a YAML file. An empty path means
// the built-in rules; a missing file falls back to them with the error
// so callers can log the problem and keep going.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := ioutil.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}

	if len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no masking rules configured")
	}

	return cfg, nil
}

// DefaultRules covers the identifiers that show up in Indian clinical
// exports: Aadhaar numbers, email addresses and mobile numbers. Email
// runs before the mobile rule so digits inside an address are not
// half-masked as a phone number.
func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "Aadhaar", Type: "aadhaar", Pattern: `\b\d{4}[ -]?\d{4}[ -]?\d{4}\b`, Mask: "****-****-****", Enabled: true, Severity: "high"},
		{Name: "Email", Type: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, Mask: "***@***", Enabled: true, Severity: "medium"},
		{Name: "Mobile", Type: "phone", Pattern: `\+91[ -]?[6-9]\d{9}\b|\b[6-9]\d{9}\b`, Mask: "**********", Enabled: true, Severity: "medium"},
	}}
}
