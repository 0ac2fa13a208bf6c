package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/ingest"
	"github.com/ernie/portal-repository/internal/search"
	"github.com/ernie/portal-repository/internal/storage"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response. The status is already sent when
// encoding fails, so the failure is only logged.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("writing response", "status", status, "error", err)
	}
}

// decodeJSON decodes a bounded request body, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

type sightingResponse struct {
	PlayerID string `json:"player_id"`
	Created  bool   `json:"created"`
}

// handleRecordSighting creates or updates the player a sighting resolves to
func (r *Router) handleRecordSighting(w http.ResponseWriter, req *http.Request) {
	var sighting domain.Sighting
	if err := decodeJSON(w, req, &sighting); err != nil {
		writeDomainError(w, r.logger, err)
		return
	}

	result, err := r.store.RecordSighting(req.Context(), sighting)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	ingest.Announce(req.Context(), result, sighting, r.counts, r.hub, r.clock)

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, r.logger, status, sightingResponse{PlayerID: result.PlayerID, Created: result.Created})
}

// handleCreatePlayer creates a player; an existing (game type, guid) is a conflict
func (r *Router) handleCreatePlayer(w http.ResponseWriter, req *http.Request) {
	var sighting domain.Sighting
	if err := decodeJSON(w, req, &sighting); err != nil {
		writeDomainError(w, r.logger, err)
		return
	}

	player, err := r.store.CreatePlayer(req.Context(), sighting)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	ingest.Announce(req.Context(), &storage.SightingResult{PlayerID: player.ID, Created: true}, sighting, r.counts, r.hub, r.clock)
	writeJSON(w, r.logger, http.StatusCreated, player)
}

// parseSearchQuery reads the shared search parameters
func parseSearchQuery(req *http.Request, termParam string) (search.Query, error) {
	q := search.Query{Term: req.URL.Query().Get(termParam)}
	var err error
	if q.GameType, err = parseGameTypeFilter(req); err != nil {
		return q, err
	}
	if q.Order, err = domain.ParsePlayerOrder(req.URL.Query().Get("order")); err != nil {
		return q, err
	}
	if q.Offset, err = parseOffset(req); err != nil {
		return q, err
	}
	if q.Limit, err = parseLimit(req); err != nil {
		return q, err
	}
	return q, nil
}

// handleSearchPlayers resolves a free-text term
func (r *Router) handleSearchPlayers(w http.ResponseWriter, req *http.Request) {
	q, err := parseSearchQuery(req, "term")
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	page, err := r.search.SearchPlayers(req.Context(), q)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, page)
}

// handleSearchByIP resolves an address or fragment
func (r *Router) handleSearchByIP(w http.ResponseWriter, req *http.Request) {
	q, err := parseSearchQuery(req, "address")
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	page, err := r.search.SearchByIP(req.Context(), q)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, page)
}

// handleGetPlayer returns a player with the requested includes
func (r *Router) handleGetPlayer(w http.ResponseWriter, req *http.Request) {
	include, err := domain.ParsePlayerInclude(req.URL.Query().Get("include"))
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	player, err := r.store.GetPlayer(req.Context(), mux.Vars(req)["id"], include)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, player)
}

// handleGetPlayerByGUID returns a player by game identity
func (r *Router) handleGetPlayerByGUID(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	gameType, err := domain.ParseGameType(vars["gameType"])
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	include, err := domain.ParsePlayerInclude(req.URL.Query().Get("include"))
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	player, err := r.store.GetPlayerByGameTypeAndGUID(req.Context(), gameType, vars["guid"], include)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, player)
}

func (r *Router) handleListAliases(w http.ResponseWriter, req *http.Request) {
	aliases, err := r.store.ListAliases(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, aliases)
}

func (r *Router) handleListIPAddresses(w http.ResponseWriter, req *http.Request) {
	addresses, err := r.store.ListIPAddresses(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, addresses)
}

// handleRelatedPlayers returns players sharing the player's current address
func (r *Router) handleRelatedPlayers(w http.ResponseWriter, req *http.Request) {
	related, err := r.store.GetRelatedPlayers(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, related)
}

func (r *Router) handlePlayerProtectedNames(w http.ResponseWriter, req *http.Request) {
	names, err := r.names.ListForPlayer(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, names)
}

type assignTagRequest struct {
	TagID      string  `json:"tag_id"`
	AssignedBy *string `json:"assigned_by,omitempty"`
}

func (r *Router) handleAssignTag(w http.ResponseWriter, req *http.Request) {
	var body assignTagRequest
	if err := decodeJSON(w, req, &body); err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	pt, err := r.tags.AssignTag(req.Context(), mux.Vars(req)["id"], body.TagID, body.AssignedBy)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusCreated, pt)
}

func (r *Router) handleRemovePlayerTag(w http.ResponseWriter, req *http.Request) {
	if err := r.tags.RemovePlayerTag(req.Context(), mux.Vars(req)["id"]); err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleListProtectedNames(w http.ResponseWriter, req *http.Request) {
	offset, err := parseOffset(req)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	limit, err := parseLimit(req)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	page, err := r.names.List(req.Context(), offset, limit)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, page)
}

type createProtectedNameRequest struct {
	PlayerID  string  `json:"player_id"`
	Name      string  `json:"name"`
	CreatedBy *string `json:"created_by,omitempty"`
}

func (r *Router) handleCreateProtectedName(w http.ResponseWriter, req *http.Request) {
	var body createProtectedNameRequest
	if err := decodeJSON(w, req, &body); err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	pn, err := r.names.Create(req.Context(), body.PlayerID, body.Name, body.CreatedBy)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusCreated, pn)
}

// handleProtectedNameUsage reports every player that has used a protected name
func (r *Router) handleProtectedNameUsage(w http.ResponseWriter, req *http.Request) {
	report, err := r.names.GetUsageReport(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, report)
}

func (r *Router) handleDeleteProtectedName(w http.ResponseWriter, req *http.Request) {
	if err := r.names.Delete(req.Context(), mux.Vars(req)["id"]); err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleListTags(w http.ResponseWriter, req *http.Request) {
	list, err := r.tags.ListTags(req.Context())
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, list)
}

type createTagRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleCreateTag creates a user-defined tag
func (r *Router) handleCreateTag(w http.ResponseWriter, req *http.Request) {
	var body createTagRequest
	if err := decodeJSON(w, req, &body); err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	tag, err := r.tags.CreateTag(req.Context(), body.Name, body.Description, true)
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusCreated, tag)
}

// handleReconcileTags triggers a reconciliation run outside the schedule
func (r *Router) handleReconcileTags(w http.ResponseWriter, req *http.Request) {
	report, err := r.job.RunOnce(req.Context())
	if err != nil {
		writeDomainError(w, r.logger, err)
		return
	}
	writeJSON(w, r.logger, http.StatusOK, report)
}

// handleHealth returns server health status
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	if err := r.store.Ping(ctx); err != nil {
		r.logger.Error("health check failed", "error", err)
		writeJSON(w, r.logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, r.logger, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"websocket_clients": r.hub.ClientCount(ctx),
	})
}
