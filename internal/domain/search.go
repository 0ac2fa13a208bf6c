package domain

import (
	"fmt"
	"strings"
)

// PlayerOrder is the explicit ordering applied to a player result set
type PlayerOrder string

const (
	OrderUsernameAsc   PlayerOrder = "username-asc"
	OrderUsernameDesc  PlayerOrder = "username-desc"
	OrderFirstSeenAsc  PlayerOrder = "first-seen-asc"
	OrderFirstSeenDesc PlayerOrder = "first-seen-desc"
	OrderLastSeenAsc   PlayerOrder = "last-seen-asc"
	OrderLastSeenDesc  PlayerOrder = "last-seen-desc"
)

// DefaultPlayerOrder is used when a caller does not pick one
const DefaultPlayerOrder = OrderLastSeenDesc

var playerOrders = map[PlayerOrder]bool{
	OrderUsernameAsc:   true,
	OrderUsernameDesc:  true,
	OrderFirstSeenAsc:  true,
	OrderFirstSeenDesc: true,
	OrderLastSeenAsc:   true,
	OrderLastSeenDesc:  true,
}

// ParsePlayerOrder parses an order string; empty yields the default
func ParsePlayerOrder(s string) (PlayerOrder, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPlayerOrder, nil
	}
	o := PlayerOrder(s)
	if !playerOrders[o] {
		return "", fmt.Errorf("order %q: %w", s, ErrInvalidInput)
	}
	return o, nil
}

// PlayerPage is a paginated player result with "N of M" counts.
// TotalCount may be served from cache and is approximate; FilteredCount
// and Players are always exact.
type PlayerPage struct {
	TotalCount    int64    `json:"total_count"`
	FilteredCount int64    `json:"filtered_count"`
	Offset        int      `json:"offset"`
	Limit         int      `json:"limit"`
	Players       []Player `json:"players"`
}
