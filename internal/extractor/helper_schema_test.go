package extractor_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

// loadRulesetFromJSON round-trips an inline ruleset document through the
// real loader so tests exercise the same parsing path production uses.
func loadRulesetFromJSON(t *testing.T, document string) *schema.Ruleset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "field_rules.json")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o644))
	ruleset, err := schema.LoadRuleset(path)
	require.NoError(t, err)
	return ruleset
}
