package countcache

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// Key prefix for all cached counts
const keyPrefix = "portal:count"

// Scopes group counts that are invalidated together
const (
	ScopePlayers        = "players"
	ScopeProtectedNames = "protected_names"
	ScopeTags           = "tags"
)

// scopePrefix returns the key prefix shared by every count in a scope
func scopePrefix(scope string) string {
	return fmt.Sprintf("%s:%s:", keyPrefix, scope)
}

// countKey returns the key for a count of scope filtered by params. params
// is hashed structurally, so equal filters map to the same key regardless
// of pointer identity.
func countKey(scope string, params any) (string, error) {
	h, err := hashstructure.Hash(params, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("hashing count params: %w", err)
	}
	return fmt.Sprintf("%s%016x", scopePrefix(scope), h), nil
}
