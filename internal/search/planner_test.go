package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ernie/portal-repository/internal/storage"
)

func kinds(matches []storage.Match) []storage.MatchKind {
	out := []storage.MatchKind{}
	for _, m := range matches {
		out = append(out, m.Kind)
	}
	return out
}

func TestPlanTerm(t *testing.T) {
	tests := []struct {
		name string
		term string
		want []storage.MatchKind
	}{
		{"empty", "   ", []storage.MatchKind{}},
		{"guid length", strings.Repeat("a", 32), []storage.MatchKind{storage.MatchGUIDExact}},
		{"guid length after trim", "  " + strings.Repeat("b", 32) + " ", []storage.MatchKind{storage.MatchGUIDExact}},
		{"one char", "a", []storage.MatchKind{storage.MatchUsernamePrefix, storage.MatchGUIDPrefix}},
		{"two chars", "ab", []storage.MatchKind{storage.MatchUsernamePrefix, storage.MatchGUIDPrefix}},
		{"three chars", "abc", []storage.MatchKind{storage.MatchUsernameContains, storage.MatchGUIDContains, storage.MatchAliasContains}},
		{"thirty one chars", strings.Repeat("c", 31), []storage.MatchKind{storage.MatchUsernameContains, storage.MatchGUIDContains, storage.MatchAliasContains}},
		{"thirty three chars", strings.Repeat("c", 33), []storage.MatchKind{storage.MatchUsernameContains, storage.MatchGUIDContains, storage.MatchAliasContains}},
		{"two multibyte chars", "éa", []storage.MatchKind{storage.MatchUsernamePrefix, storage.MatchGUIDPrefix}},
		{"three multibyte chars", "ééé", []storage.MatchKind{storage.MatchUsernameContains, storage.MatchGUIDContains, storage.MatchAliasContains}},
		{"thirty two bytes of multibyte chars", strings.Repeat("é", 16), []storage.MatchKind{storage.MatchUsernameContains, storage.MatchGUIDContains, storage.MatchAliasContains}},
		{"thirty two multibyte chars", strings.Repeat("é", 32), []storage.MatchKind{storage.MatchGUIDExact}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kinds(planTerm(tt.term)))
		})
	}
}

func TestPlanTermTrimsValue(t *testing.T) {
	matches := planTerm("  foo ")
	for _, m := range matches {
		assert.Equal(t, "foo", m.Value)
	}
}

func TestPlanIP(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []storage.MatchKind
		value string
	}{
		{"address", "10.0.0.1", []storage.MatchKind{storage.MatchIPExact, storage.MatchIPHistoryExact}, "10.0.0.1"},
		{"address with port", "10.0.0.1:28960", []storage.MatchKind{storage.MatchIPExact, storage.MatchIPHistoryExact}, "10.0.0.1"},
		{"ipv6", "::ffff:10.0.0.1", []storage.MatchKind{storage.MatchIPExact, storage.MatchIPHistoryExact}, "10.0.0.1"},
		{"subnet fragment", "10.0.", []storage.MatchKind{storage.MatchIPContains, storage.MatchIPHistoryContains}, "10.0."},
		{"short fragment", "10", []storage.MatchKind{storage.MatchIPContains}, "10"},
		{"short multibyte fragment", "1é", []storage.MatchKind{storage.MatchIPContains}, "1é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := planIP(tt.input)
			assert.Equal(t, tt.want, kinds(matches))
			for _, m := range matches {
				assert.Equal(t, tt.value, m.Value)
			}
		})
	}
	assert.Empty(t, planIP(" "))
}
