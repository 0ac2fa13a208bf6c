package storage

import (
	"database/sql"

	"github.com/ernie/portal-repository/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullString(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

const playerColumns = `p.id, p.game_type, p.guid, p.username, p.ip_address, p.first_seen, p.last_seen`

// scanPlayer scans a row selected with playerColumns
func scanPlayer(row scanner) (domain.Player, error) {
	var p domain.Player
	var gameType string
	err := row.Scan(&p.ID, &gameType, &p.GUID, &p.Username, &p.IPAddress, &p.FirstSeen, &p.LastSeen)
	p.GameType = domain.GameType(gameType)
	return p, err
}

// scanPlayers drains rows selected with playerColumns
func scanPlayers(rows *sql.Rows) ([]domain.Player, error) {
	defer rows.Close()

	players := []domain.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// scanProtectedName scans id, name, player_id, created_on, created_by
func scanProtectedName(row scanner) (domain.ProtectedName, error) {
	var pn domain.ProtectedName
	var createdBy sql.NullString
	err := row.Scan(&pn.ID, &pn.Name, &pn.PlayerID, &pn.CreatedOn, &createdBy)
	pn.CreatedByUserProfile = scanNullString(createdBy)
	return pn, err
}

// scanPlayerTag scans id, player_id, tag_id, tag name, assigned, assigned_by
func scanPlayerTag(row scanner) (domain.PlayerTag, error) {
	var pt domain.PlayerTag
	var assignedBy sql.NullString
	err := row.Scan(&pt.ID, &pt.PlayerID, &pt.TagID, &pt.TagName, &pt.Assigned, &assignedBy)
	pt.AssignedBy = scanNullString(assignedBy)
	return pt, err
}
