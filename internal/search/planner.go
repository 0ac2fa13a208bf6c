package search

import (
	"strings"
	"unicode/utf8"

	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/storage"
)

// shortTermLength is the length in characters below which terms only
// prefix-match
const shortTermLength = 3

// planTerm picks the match set for a free-text term. First tier wins:
// a GUID-length term matches the GUID exactly, a short term prefix-matches
// username and GUID, anything else substring-matches username and GUID
// plus alias history.
func planTerm(term string) []storage.Match {
	term = strings.TrimSpace(term)
	length := utf8.RuneCountInString(term)
	switch {
	case term == "":
		return nil
	case length == domain.GUIDLength:
		return []storage.Match{{Kind: storage.MatchGUIDExact, Value: term}}
	case length < shortTermLength:
		return []storage.Match{
			{Kind: storage.MatchUsernamePrefix, Value: term},
			{Kind: storage.MatchGUIDPrefix, Value: term},
		}
	default:
		return []storage.Match{
			{Kind: storage.MatchUsernameContains, Value: term},
			{Kind: storage.MatchGUIDContains, Value: term},
			{Kind: storage.MatchAliasContains, Value: term},
		}
	}
}

// planIP picks the match set for an address query. A parseable address
// matches current and historical addresses exactly; other input of three or
// more characters substring-matches both; shorter input substring-matches
// the current address only.
func planIP(address string) []storage.Match {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}
	if normalized, ok := domain.NormalizeIPAddress(address); ok {
		return []storage.Match{
			{Kind: storage.MatchIPExact, Value: normalized},
			{Kind: storage.MatchIPHistoryExact, Value: normalized},
		}
	}
	if utf8.RuneCountInString(address) >= shortTermLength {
		return []storage.Match{
			{Kind: storage.MatchIPContains, Value: address},
			{Kind: storage.MatchIPHistoryContains, Value: address},
		}
	}
	return []storage.Match{{Kind: storage.MatchIPContains, Value: address}}
}
