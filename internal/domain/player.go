package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// GUIDLength is the length of a per-game player GUID. Search terms of exactly
// this length are treated as GUIDs.
const GUIDLength = 32

// GameType identifies the game a player identity belongs to
type GameType string

const (
	GameTypeUnknown    GameType = "unknown"
	GameTypeCoD2       GameType = "cod2"
	GameTypeCoD4       GameType = "cod4"
	GameTypeCoD5       GameType = "cod5"
	GameTypeInsurgency GameType = "insurgency"
	GameTypeMinecraft  GameType = "minecraft"
	GameTypeRust       GameType = "rust"
	GameTypeLeft4Dead2 GameType = "left4dead2"
)

var gameTypes = map[GameType]bool{
	GameTypeUnknown:    true,
	GameTypeCoD2:       true,
	GameTypeCoD4:       true,
	GameTypeCoD5:       true,
	GameTypeInsurgency: true,
	GameTypeMinecraft:  true,
	GameTypeRust:       true,
	GameTypeLeft4Dead2: true,
}

// GameTypes returns every known game type in sorted order
func GameTypes() []GameType {
	out := make([]GameType, 0, len(gameTypes))
	for gt := range gameTypes {
		out = append(out, gt)
	}
	slices.Sort(out)
	return out
}

// ParseGameType parses a game type case-insensitively
func ParseGameType(s string) (GameType, error) {
	gt := GameType(strings.ToLower(strings.TrimSpace(s)))
	if !gameTypes[gt] {
		return "", fmt.Errorf("game type %q: %w", s, ErrInvalidInput)
	}
	return gt, nil
}

// Player is the canonical identity for a (GameType, GUID) pair
type Player struct {
	ID        string    `json:"id"`
	GameType  GameType  `json:"game_type"`
	GUID      string    `json:"guid"`
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Populated only when requested through PlayerInclude
	Aliases        []PlayerAlias     `json:"aliases,omitempty"`
	IPAddresses    []PlayerIPAddress `json:"ip_addresses,omitempty"`
	Tags           []PlayerTag       `json:"tags,omitempty"`
	ProtectedNames []ProtectedName   `json:"protected_names,omitempty"`
	RelatedPlayers []Player          `json:"related_players,omitempty"`
}

// PlayerAlias is a display name observed for a player
type PlayerAlias struct {
	PlayerID        string    `json:"player_id"`
	Name            string    `json:"name"`
	Added           time.Time `json:"added"`
	LastUsed        time.Time `json:"last_used"`
	ConfidenceScore int       `json:"confidence_score"`
}

// PlayerIPAddress is an address a player has connected from
type PlayerIPAddress struct {
	PlayerID        string    `json:"player_id"`
	Address         string    `json:"address"`
	Added           time.Time `json:"added"`
	LastUsed        time.Time `json:"last_used"`
	ConfidenceScore int       `json:"confidence_score"`
}

// PlayerInclude selects which related collections a player lookup loads
type PlayerInclude struct {
	Aliases        bool
	IPAddresses    bool
	Tags           bool
	ProtectedNames bool
	RelatedPlayers bool
}

// IncludeAll requests every related collection
func IncludeAll() PlayerInclude {
	return PlayerInclude{
		Aliases:        true,
		IPAddresses:    true,
		Tags:           true,
		ProtectedNames: true,
		RelatedPlayers: true,
	}
}

// ParsePlayerInclude parses a comma separated include list such as
// "aliases,ips,tags". Unknown entries are InvalidInput.
func ParsePlayerInclude(s string) (PlayerInclude, error) {
	var inc PlayerInclude
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "aliases":
			inc.Aliases = true
		case "ips", "ip_addresses":
			inc.IPAddresses = true
		case "tags":
			inc.Tags = true
		case "protected_names":
			inc.ProtectedNames = true
		case "related":
			inc.RelatedPlayers = true
		case "all":
			inc = IncludeAll()
		default:
			return PlayerInclude{}, fmt.Errorf("include %q: %w", part, ErrInvalidInput)
		}
	}
	return inc, nil
}

// Sighting is one observation of a game identity
type Sighting struct {
	GameType  GameType `json:"game_type"`
	GUID      string   `json:"guid"`
	Username  string   `json:"username"`
	IPAddress string   `json:"ip_address,omitempty"`
}

// Validate checks the fields required to resolve a sighting to a player
func (s Sighting) Validate() error {
	if _, err := ParseGameType(string(s.GameType)); err != nil {
		return err
	}
	if strings.TrimSpace(s.GUID) == "" {
		return fmt.Errorf("guid is required: %w", ErrInvalidInput)
	}
	return nil
}
