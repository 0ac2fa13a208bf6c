package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ernie/portal-repository/internal/domain"
)

// parseLimit parses a limit parameter; absent yields 0 so the service
// default applies. Values above the service maximum are capped there.
func parseLimit(r *http.Request) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("limit %q: %w", l, domain.ErrInvalidInput)
	}
	return parsed, nil
}

// parseOffset parses an offset parameter
func parseOffset(r *http.Request) (int, error) {
	o := r.URL.Query().Get("offset")
	if o == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(o)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("offset %q: %w", o, domain.ErrInvalidInput)
	}
	return parsed, nil
}

// parseGameTypeFilter parses an optional game_type parameter
func parseGameTypeFilter(r *http.Request) (*domain.GameType, error) {
	g := r.URL.Query().Get("game_type")
	if g == "" {
		return nil, nil
	}
	gt, err := domain.ParseGameType(g)
	if err != nil {
		return nil, err
	}
	return &gt, nil
}
