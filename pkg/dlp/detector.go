package dlp

import "regexp"

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Detector masks personal identifiers that slip into free-text fields
// of clinical exports. A nil Detector is a no-op, so callers can run
// without a guard configured.
type Detector struct {
	rules []compiledRule
}

func NewDetector(cfg RulesConfig) (*Detector, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Detector{rules: compiled}, nil
}

// Finding is one identifier match inside a scanned text.
type Finding struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Value    string `json:"value"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

func (d *Detector) Scan(text string) []Finding {
	if d == nil || text == "" {
		return nil
	}

	var findings []Finding
	for _, rule := range d.rules {
		for _, match := range rule.re.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Type:     rule.rule.Type,
				Severity: rule.rule.Severity,
				Value:    text[match[0]:match[1]],
				Start:    match[0],
				End:      match[1],
			})
		}
	}
	return findings
}

// Mask replaces every match with the rule's mask string and reports
// how many replacements were made. Rules apply in order over the
// already-masked text.
func (d *Detector) Mask(text string) (string, int) {
	if d == nil || text == "" {
		return text, 0
	}

	masked := text
	count := 0
	for _, rule := range d.rules {
		matches := rule.re.FindAllStringIndex(masked, -1)
		if len(matches) == 0 {
			continue
		}
		count += len(matches)
		masked = rule.re.ReplaceAllString(masked, rule.rule.Mask)
	}
	return masked, count
}
