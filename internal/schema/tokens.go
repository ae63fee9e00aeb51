package schema

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it into alphanumeric runs.
// "Viper V3 Pro (wireless)" -> ["viper", "v3", "pro", "wireless"].
func Tokenize(s string) []string {
	lower := strings.ToLower(s)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSet returns the tokens of s as a set.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// TokenOverlap computes |need ∩ have| / |need|.
// Returns 1 for an empty need set.
func TokenOverlap(need []string, have map[string]struct{}) float64 {
	if len(need) == 0 {
		return 1
	}
	matched := 0
	for _, tok := range need {
		if _, ok := have[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(need))
}

// NumericTokens filters tokens down to the ones that carry a digit.
// Model strings like "g pro x 2" hinge on these.
func NumericTokens(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		if strings.IndexFunc(tok, unicode.IsDigit) >= 0 {
			out = append(out, tok)
		}
	}
	return out
}

// DeriveLock builds the immutable identity lock for a catalog entry.
// Required tokens are the brand and model tokens; ambiguity defaults
// to medium when the catalog does not say.
func DeriveLock(entry CatalogEntry) IdentityLock {
	required := append(Tokenize(entry.Brand), Tokenize(entry.Model)...)
	ambiguity := entry.Ambiguity
	if ambiguity == "" {
		ambiguity = AmbiguityMedium
	}
	return IdentityLock{
		ProductID:      entry.ProductID,
		Brand:          entry.Brand,
		Model:          entry.Model,
		Variant:        entry.Variant,
		SKU:            entry.SKU,
		MPN:            entry.MPN,
		GTIN:           entry.GTIN,
		NegativeTokens: entry.NegativeTokens,
		RequiredTokens: required,
		Ambiguity:      ambiguity,
	}
}
