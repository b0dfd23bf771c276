package dlp

import (
	"strings"
	"testing"
)

func TestDetectorScansDefaultRules(t *testing.T) {
	detector, err := NewDetector(DefaultRules())
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}

	text := "follow up with patient at ravi.k@example.com or 9876543210, aadhaar 1234 5678 9012"
	findings := detector.Scan(text)
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d: %v", len(findings), findings)
	}

	types := make(map[string]bool)
	for _, f := range findings {
		types[f.Type] = true
		if f.Value != text[f.Start:f.End] {
			t.Fatalf("finding value %q does not match offsets", f.Value)
		}
	}
	for _, want := range []string{"aadhaar", "email", "phone"} {
		if !types[want] {
			t.Fatalf("missing finding type %q in %v", want, types)
		}
	}
}

func TestMaskReplacesMatches(t *testing.T) {
	detector, err := NewDetector(DefaultRules())
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}

	masked, count := detector.Mask("chronic migraine, contact +91 9876543210")
	if count != 1 {
		t.Fatalf("expected 1 replacement, got %d", count)
	}
	if strings.Contains(masked, "9876543210") {
		t.Fatalf("number survived masking: %q", masked)
	}
	if !strings.HasPrefix(masked, "chronic migraine") {
		t.Fatalf("clinical text was altered: %q", masked)
	}
}

func TestMaskLeavesCleanTextAlone(t *testing.T) {
	detector, err := NewDetector(DefaultRules())
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}

	masked, count := detector.Mask("Chronic Insomnia")
	if count != 0 || masked != "Chronic Insomnia" {
		t.Fatalf("clean text changed: %q count %d", masked, count)
	}
}

func TestNilDetectorIsNoop(t *testing.T) {
	var detector *Detector
	masked, count := detector.Mask("anything 9876543210")
	if count != 0 || masked != "anything 9876543210" {
		t.Fatal("nil detector must pass text through")
	}
	if findings := detector.Scan("9876543210"); findings != nil {
		t.Fatalf("nil detector returned findings: %v", findings)
	}
}

func TestNewDetectorRejectsBadPattern(t *testing.T) {
	_, err := NewDetector(RulesConfig{Rules: []Rule{
		{Name: "Broken", Type: "broken", Pattern: "([", Enabled: true},
	}})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestDisabledRulesAreSkipped(t *testing.T) {
	detector, err := NewDetector(RulesConfig{Rules: []Rule{
		{Name: "Email", Type: "email", Pattern: `@`, Mask: "*", Enabled: false},
	}})
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}
	if findings := detector.Scan("a@b"); len(findings) != 0 {
		t.Fatalf("disabled rule matched: %v", findings)
	}
}
