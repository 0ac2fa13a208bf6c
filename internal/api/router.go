package api

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"github.com/ernie/portal-repository/internal/dependencies/clock"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/ingest"
	"github.com/ernie/portal-repository/internal/protectednames"
	"github.com/ernie/portal-repository/internal/search"
	"github.com/ernie/portal-repository/internal/storage"
	"github.com/ernie/portal-repository/internal/tags"
)

// RouterConfig holds the router's dependencies
type RouterConfig struct {
	Store  *storage.Store
	Search *search.Service
	Names  *protectednames.Registry
	Tags   *tags.Service
	Job    *tags.Job
	Counts ingest.Invalidator
	Hub    *WebSocketHub
	Clock  clock.Clock
	Logger *slog.Logger
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux     *mux.Router
	handler http.Handler
	store   *storage.Store
	search  *search.Service
	names   *protectednames.Registry
	tags    *tags.Service
	job     *tags.Job
	counts  ingest.Invalidator
	hub     *WebSocketHub
	clock   clock.Clock
	logger  *slog.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewWebSocketHub(cfg.Logger)
	}

	r := &Router{
		mux:    mux.NewRouter(),
		store:  cfg.Store,
		search: cfg.Search,
		names:  cfg.Names,
		tags:   cfg.Tags,
		job:    cfg.Job,
		counts: cfg.Counts,
		hub:    cfg.Hub,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}

	r.mux.Use(recovery(r.logger))
	r.mux.Use(logging(r.logger))

	// WebSocket stays outside the gzip wrapper
	r.mux.HandleFunc("/ws", r.handleWebSocket).Methods(http.MethodGet)
	r.mux.HandleFunc("/health", r.handleHealth).Methods(http.MethodGet)

	api := r.mux.PathPrefix("/api").Subrouter()
	api.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

	// Sightings and players
	api.HandleFunc("/sightings", r.handleRecordSighting).Methods(http.MethodPost)
	api.HandleFunc("/players", r.handleCreatePlayer).Methods(http.MethodPost)
	api.HandleFunc("/players", r.handleSearchPlayers).Methods(http.MethodGet)
	api.HandleFunc("/players/ip", r.handleSearchByIP).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/aliases", r.handleListAliases).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/ips", r.handleListIPAddresses).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/related", r.handleRelatedPlayers).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/protected-names", r.handlePlayerProtectedNames).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/tags", r.handleAssignTag).Methods(http.MethodPost)
	api.HandleFunc("/players/{gameType:"+gameTypePattern()+"}/{guid}", r.handleGetPlayerByGUID).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}", r.handleGetPlayer).Methods(http.MethodGet)

	// Protected names
	api.HandleFunc("/protected-names", r.handleListProtectedNames).Methods(http.MethodGet)
	api.HandleFunc("/protected-names", r.handleCreateProtectedName).Methods(http.MethodPost)
	api.HandleFunc("/protected-names/{id}/usage", r.handleProtectedNameUsage).Methods(http.MethodGet)
	api.HandleFunc("/protected-names/{id}", r.handleDeleteProtectedName).Methods(http.MethodDelete)

	// Tags
	api.HandleFunc("/tags", r.handleListTags).Methods(http.MethodGet)
	api.HandleFunc("/tags", r.handleCreateTag).Methods(http.MethodPost)
	api.HandleFunc("/player-tags/{id}", r.handleRemovePlayerTag).Methods(http.MethodDelete)
	api.HandleFunc("/admin/reconcile-tags", r.handleReconcileTags).Methods(http.MethodPost)

	r.mux.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, r.logger, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.mux.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, r.logger, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
	})

	r.handler = cors(r.mux)
	return r
}

// gameTypePattern matches the known game types case-insensitively so other
// player subresources are never routed as a GUID lookup
func gameTypePattern() string {
	names := make([]string, 0, len(domain.GameTypes()))
	for _, gt := range domain.GameTypes() {
		names = append(names, regexp.QuoteMeta(string(gt)))
	}
	return "(?i:" + strings.Join(names, "|") + ")"
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Hub returns the router's event hub
func (r *Router) Hub() *WebSocketHub {
	return r.hub
}
