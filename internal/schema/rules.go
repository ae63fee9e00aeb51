package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ruleset indexes the field rules of one category.
type Ruleset struct {
	category string
	rules    map[string]FieldRule
	ordered  []string
}

// Category returns the category this ruleset was compiled for.
func (rs *Ruleset) Category() string {
	return rs.category
}

// Rule looks up the rule for a field key.
func (rs *Ruleset) Rule(key string) (FieldRule, bool) {
	rule, ok := rs.rules[key]
	return rule, ok
}

// Keys returns field keys in their compiled order.
func (rs *Ruleset) Keys() []string {
	out := make([]string, len(rs.ordered))
	copy(out, rs.ordered)
	return out
}

// RequiredKeys returns the keys of required fields.
func (rs *Ruleset) RequiredKeys() []string {
	return rs.filterKeys(func(r FieldRule) bool { return r.Required })
}

// CriticalKeys returns the keys of critical fields.
func (rs *Ruleset) CriticalKeys() []string {
	return rs.filterKeys(func(r FieldRule) bool { return r.Critical })
}

// ExpectedKeys returns the keys of expected (nice-to-have) fields.
func (rs *Ruleset) ExpectedKeys() []string {
	return rs.filterKeys(func(r FieldRule) bool { return r.Expected })
}

func (rs *Ruleset) filterKeys(keep func(FieldRule) bool) []string {
	var out []string
	for _, key := range rs.ordered {
		if keep(rs.rules[key]) {
			out = append(out, key)
		}
	}
	return out
}

type rulesetDTO struct {
	Category string      `json:"category"`
	Fields   []FieldRule `json:"fields"`
}

// LoadRuleset reads a compiled field-rule artifact (JSON).
func LoadRuleset(path string) (*Ruleset, error) {
	content, err := readSchemaFile(path)
	if err != nil {
		return nil, err
	}
	dto := rulesetDTO{}
	if err := json.Unmarshal(content, &dto); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaParsingFail, err.Error())
	}

	rs := &Ruleset{
		category: dto.Category,
		rules:    make(map[string]FieldRule, len(dto.Fields)),
	}
	for _, rule := range dto.Fields {
		if rule.Key == "" {
			continue
		}
		rs.rules[rule.Key] = rule
		rs.ordered = append(rs.ordered, rule.Key)
	}
	return rs, nil
}

// ComponentDB indexes component entries by type and by alias.
type ComponentDB struct {
	byType map[string][]ComponentEntry
	// alias index: componentType -> normalized alias -> entry index
	aliasIndex map[string]map[string]int
}

// Lookup resolves a raw component mention to its canonical entry using
// exact canonical-name or alias match after normalization.
func (db *ComponentDB) Lookup(componentType, mention string) (ComponentEntry, bool) {
	idx, ok := db.aliasIndex[componentType]
	if !ok {
		return ComponentEntry{}, false
	}
	i, ok := idx[normalizeAlias(mention)]
	if !ok {
		return ComponentEntry{}, false
	}
	return db.byType[componentType][i], true
}

// Entries returns all entries of a component type.
func (db *ComponentDB) Entries(componentType string) []ComponentEntry {
	return db.byType[componentType]
}

type componentDBDTO struct {
	Components []ComponentEntry `json:"components"`
}

// LoadComponentDB reads a compiled component-database artifact (JSON).
func LoadComponentDB(path string) (*ComponentDB, error) {
	content, err := readSchemaFile(path)
	if err != nil {
		return nil, err
	}
	dto := componentDBDTO{}
	if err := json.Unmarshal(content, &dto); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaParsingFail, err.Error())
	}

	db := &ComponentDB{
		byType:     make(map[string][]ComponentEntry),
		aliasIndex: make(map[string]map[string]int),
	}
	for _, entry := range dto.Components {
		list := db.byType[entry.ComponentType]
		i := len(list)
		db.byType[entry.ComponentType] = append(list, entry)

		idx := db.aliasIndex[entry.ComponentType]
		if idx == nil {
			idx = make(map[string]int)
			db.aliasIndex[entry.ComponentType] = idx
		}
		idx[normalizeAlias(entry.CanonicalName)] = i
		for _, alias := range entry.Aliases {
			idx[normalizeAlias(alias)] = i
		}
	}
	return db, nil
}

// LoadCatalog reads the product catalog (JSON array of entries).
func LoadCatalog(path string) (map[string]CatalogEntry, error) {
	content, err := readSchemaFile(path)
	if err != nil {
		return nil, err
	}
	var entries []CatalogEntry
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaParsingFail, err.Error())
	}
	catalog := make(map[string]CatalogEntry, len(entries))
	for _, entry := range entries {
		catalog[entry.ProductID] = entry
	}
	return catalog, nil
}

// LoadTierMap reads the category trust configuration (YAML).
func LoadTierMap(path string) (*TierMap, error) {
	content, err := readSchemaFile(path)
	if err != nil {
		return nil, err
	}
	tm := &TierMap{}
	if err := yaml.Unmarshal(content, tm); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaParsingFail, err.Error())
	}
	return tm, nil
}

// Profile resolves a root domain to its trust profile. Unlisted domains
// are unverified "other" hosts.
func (t *TierMap) Profile(rootDomain string) DomainProfile {
	for _, p := range t.Domains {
		if p.Domain == rootDomain {
			return p
		}
	}
	return DomainProfile{Domain: rootDomain, Tier: TierUnverified, Role: RoleOther}
}

// IsApproved reports whether the root domain is on the approved list.
func (t *TierMap) IsApproved(rootDomain string) bool {
	for _, d := range t.Approved {
		if d == rootDomain {
			return true
		}
	}
	return false
}

// IsDenied reports whether the root domain is on the denied list.
func (t *TierMap) IsDenied(rootDomain string) bool {
	for _, d := range t.Denied {
		if d == rootDomain {
			return true
		}
	}
	return false
}

func normalizeAlias(s string) string {
	return strings.Join(Tokenize(s), " ")
}

func readSchemaFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReadSchemaFail, err.Error())
	}
	return content, nil
}
