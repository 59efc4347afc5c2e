package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"patientzero/internal/activity"
	"patientzero/internal/buffer"
	"patientzero/internal/config"
	"patientzero/internal/game"
	"patientzero/internal/observability"
)

// Server exposes the ops/command API and the platform-bridge websocket.
type Server struct {
	cfg       config.Config
	engine    *game.Engine
	cache     *activity.Cache
	store     game.Store
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
	startedAt time.Time

	mu      sync.Mutex
	bridges map[*bridgeConn]struct{}
}

func New(cfg config.Config, engine *game.Engine, cache *activity.Cache, store game.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		engine:    engine,
		cache:     cache,
		store:     store,
		metrics:   metrics,
		startedAt: time.Now().UTC(),
		bridges:   make(map[*bridgeConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// The bridge is a non-browser client and normally omits
				// Origin. Same-origin browser access stays allowed for
				// local diagnostics.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1/game", func(r chi.Router) {
		r.Get("/events/ws", s.handleBridgeWS)
		r.Get("/players/{id}", s.handleGetPlayer)
		r.Post("/players/{id}/infect", s.handleInfect)
		r.Post("/players/{id}/cure", s.handleCure)
		r.Get("/channels/{id}", s.handleGetChannel)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"started_at":     s.startedAt,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := playerID(w, r)
	if !ok {
		return
	}
	state, known, err := s.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	if !known {
		respondError(w, http.StatusNotFound, "unknown_player", "player has never spoken")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleInfect(w http.ResponseWriter, r *http.Request) {
	s.handleManual(w, r, s.engine.Infect)
}

func (s *Server) handleCure(w http.ResponseWriter, r *http.Request) {
	s.handleManual(w, r, s.engine.Cure)
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, target, source uint64) (game.Outcome, error)) {
	id, ok := playerID(w, r)
	if !ok {
		return
	}
	var body struct {
		SourceID uint64 `json:"source_id"`
	}
	if r.Body != nil {
		// An empty body means a system-initiated command (source 0).
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	out, err := apply(r.Context(), id, body.SourceID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	if out.Intent != nil {
		s.BroadcastIntent(*out.Intent)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_channel_id", "channel id must be an unsigned integer")
		return
	}
	cb, ok := s.cache.Peek(id)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown_channel", "no activity recorded for channel")
		return
	}
	var records []buffer.Record
	_ = cb.Update(func(ring *buffer.Ring) error {
		records = ring.Records()
		return nil
	})
	payload := map[string]any{
		"channel_id": id,
		"occupancy":  len(records),
	}
	if len(records) > 0 {
		payload["last"] = records[len(records)-1]
	}
	respondJSON(w, http.StatusOK, payload)
}

func playerID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(w, http.StatusBadRequest, "bad_player_id", "player id must be a positive unsigned integer")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, map[string]string{"error": code, "detail": detail})
}
