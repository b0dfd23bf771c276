package terminology

import (
	"fmt"
	"io/ioutil"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Tables holds the native-to-English terminology mappings used when
// normalizing traditional medicine records. Keys are source terms as
// they appear in submitted data, values are the canonical English form.
type Tables struct {
	Conditions  map[string]string `yaml:"conditions" json:"conditions"`
	SystemTypes map[string]string `yaml:"system_types" json:"system_types"`
	Severities  map[string]string `yaml:"severities" json:"severities"`
}

// Stats summarizes the size of the loaded translation tables.
type Stats struct {
	ConditionMappings  int `json:"condition_mappings"`
	SystemTypeMappings int `json:"system_type_mappings"`
	SeverityMappings   int `json:"severity_mappings"`
	TotalMappings      int `json:"total_mappings"`
}

// LoadTables reads translation tables from a YAML file. An empty path
// returns the built-in tables.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read terminology tables: %w", err)
	}
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, fmt.Errorf("parse terminology tables: %w", err)
	}
	if len(t.Conditions) == 0 && len(t.SystemTypes) == 0 && len(t.Severities) == 0 {
		return Tables{}, fmt.Errorf("terminology tables at %s are empty", path)
	}
	return t, nil
}

// Translator maps native-language condition names, system types and
// severities to canonical English terms. Lookups try an exact match,
// then a case-insensitive match, then (for conditions only) a substring
// match. Unrecognized terms are returned unchanged so unmapped data
// survives normalization instead of being blanked.
type Translator struct {
	mu         sync.RWMutex
	conditions *table
	systems    *table
	severities *table
}

// NewTranslator builds a Translator from the given tables. The canonical
// English values are indexed alongside the native keys so that already
// translated terms map to themselves and repeated translation is stable.
func NewTranslator(t Tables) *Translator {
	return &Translator{
		conditions: newTable(t.Conditions),
		systems:    newTable(t.SystemTypes),
		severities: newTable(t.Severities),
	}
}

// Condition translates a condition name to its canonical English form.
func (tr *Translator) Condition(name string) string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.conditions.lookup(name, true)
}

// SystemType translates a traditional medicine system name.
func (tr *Translator) SystemType(system string) string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.systems.lookup(system, false)
}

// Severity translates a severity term.
func (tr *Translator) Severity(severity string) string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.severities.lookup(severity, false)
}

// AddCondition registers an extra condition mapping at runtime.
func (tr *Translator) AddCondition(native, english string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.conditions.add(native, english)
}

// AddSystemType registers an extra system type mapping at runtime.
func (tr *Translator) AddSystemType(native, english string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.systems.add(native, english)
}

// AddSeverity registers an extra severity mapping at runtime.
func (tr *Translator) AddSeverity(native, english string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.severities.add(native, english)
}

// Stats reports how many mappings are loaded. Counts cover the source
// tables, not the derived canonical entries.
func (tr *Translator) Stats() Stats {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	s := Stats{
		ConditionMappings:  tr.conditions.size,
		SystemTypeMappings: tr.systems.size,
		SeverityMappings:   tr.severities.size,
	}
	s.TotalMappings = s.ConditionMappings + s.SystemTypeMappings + s.SeverityMappings
	return s
}

// table is one lookup direction with its keys kept sorted so that
// case-insensitive and substring scans are deterministic.
type table struct {
	entries map[string]string
	keys    []string
	size    int
}

func newTable(src map[string]string) *table {
	t := &table{entries: make(map[string]string, len(src)*2), size: len(src)}
	for k, v := range src {
		t.entries[k] = v
	}
	// Index canonical values under their lowercase form so a term that
	// is already translated resolves to itself before any substring
	// matching can rewrite it.
	for _, v := range src {
		lv := strings.ToLower(v)
		if _, ok := t.entries[lv]; !ok {
			t.entries[lv] = v
		}
	}
	t.reindex()
	return t
}

func (t *table) reindex() {
	t.keys = t.keys[:0]
	for k := range t.entries {
		t.keys = append(t.keys, k)
	}
	sort.Strings(t.keys)
}

func (t *table) add(native, english string) {
	if _, ok := t.entries[native]; !ok {
		t.size++
	}
	t.entries[native] = english
	lv := strings.ToLower(english)
	if _, ok := t.entries[lv]; !ok {
		t.entries[lv] = english
	}
	t.reindex()
}

func (t *table) lookup(term string, partial bool) string {
	if term == "" {
		return term
	}
	if v, ok := t.entries[term]; ok {
		return v
	}
	for _, k := range t.keys {
		if strings.EqualFold(k, term) {
			return t.entries[k]
		}
	}
	if partial {
		lower := strings.ToLower(term)
		for _, k := range t.keys {
			lk := strings.ToLower(k)
			if strings.Contains(lower, lk) || strings.Contains(lk, lower) {
				return t.entries[k]
			}
		}
	}
	return term
}
