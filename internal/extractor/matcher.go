package extractor

import (
	"strings"

	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

// FieldMatcher resolves page labels and JSON keys to field-rule keys
// through exact and alias matching over normalized tokens.
type FieldMatcher struct {
	ruleset *schema.Ruleset
	byLabel map[string]string
}

func NewFieldMatcher(ruleset *schema.Ruleset) *FieldMatcher {
	m := &FieldMatcher{
		ruleset: ruleset,
		byLabel: make(map[string]string),
	}
	for _, key := range ruleset.Keys() {
		rule, _ := ruleset.Rule(key)
		m.byLabel[normalizeLabel(key)] = key
		for _, alias := range rule.Aliases {
			m.byLabel[normalizeLabel(alias)] = key
		}
	}
	return m
}

// Match resolves a raw label ("Max DPI", "sensor-model") to a field key.
func (m *FieldMatcher) Match(label string) (schema.FieldRule, bool) {
	key, ok := m.byLabel[normalizeLabel(label)]
	if !ok {
		return schema.FieldRule{}, false
	}
	return m.rule(key)
}

// MatchKey resolves a JSON key by trying the raw key, then the key with
// its last path segment only ("product.specs.weight" -> "weight").
func (m *FieldMatcher) MatchKey(jsonKey string) (schema.FieldRule, bool) {
	if rule, ok := m.Match(jsonKey); ok {
		return rule, true
	}
	if i := strings.LastIndexAny(jsonKey, "./"); i >= 0 {
		return m.Match(jsonKey[i+1:])
	}
	return schema.FieldRule{}, false
}

func (m *FieldMatcher) rule(key string) (schema.FieldRule, bool) {
	return m.ruleset.Rule(key)
}

func normalizeLabel(label string) string {
	return strings.Join(schema.Tokenize(label), " ")
}
