// Package api exposes the persona's internals over HTTP: memory
// queries, psyche and growth snapshots, feed history, and manual
// triggers for the schedulers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/experience"
	"github.com/nidhogg/eidolon/internal/gateway"
	"github.com/nidhogg/eidolon/internal/memory"
	"github.com/nidhogg/eidolon/internal/psyche"
	"github.com/nidhogg/eidolon/internal/scheduler"
)

// profileReader is the slice of the profile updater the API reads.
type profileReader interface {
	Snapshot() (nickname, signature string, history []psyche.Emotion)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store     *memory.Store
	drives    *psyche.Engine
	evolution *psyche.Evolution
	growth    *experience.Tracker
	profile   profileReader
	publisher *scheduler.DailyPublisher
	feed      *gateway.Feed
	restGW    *gateway.RESTAdapter
	logger    *zap.Logger
}

// NewHandler creates a new API handler. Optional dependencies may be
// nil; their routes answer 503.
func NewHandler(
	store *memory.Store,
	drives *psyche.Engine,
	evolution *psyche.Evolution,
	growth *experience.Tracker,
	profile profileReader,
	publisher *scheduler.DailyPublisher,
	feed *gateway.Feed,
	restGW *gateway.RESTAdapter,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		store:     store,
		drives:    drives,
		evolution: evolution,
		growth:    growth,
		profile:   profile,
		publisher: publisher,
		feed:      feed,
		restGW:    restGW,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Memory routes
		r.Get("/memory/stats", h.memoryStats)
		r.Get("/memory/important", h.importantMemories)
		r.Get("/memory/core", h.coreMemories)
		r.Get("/memory/reinforcement", h.reinforcementOverview)
		r.Post("/memory/{id}/reinforce", h.reinforceMemory)
		r.Post("/memory/{id}/trivial", h.markTrivial)
		r.Post("/memory/sweep", h.runSweep)

		// Persona state routes
		r.Get("/psyche", h.psycheSnapshot)
		r.Get("/profile", h.profileSnapshot)
		r.Get("/growth", h.growthSummary)

		// Feed routes
		r.Post("/publish", h.publishNow)
		r.Get("/feed/history", h.feedHistory)

		if h.restGW != nil {
			r.Mount("/chat", h.restGW.Routes())
		}
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) memoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Statistics()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) importantMemories(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	threshold := memory.ImportantThreshold
	if t := r.URL.Query().Get("threshold"); t != "" {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid threshold"})
			return
		}
		threshold = v
	}

	records, err := h.store.ImportantMemories(memory.QueryOptions{
		UserID:    r.URL.Query().Get("user_id"),
		Threshold: threshold,
		Limit:     limit,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) coreMemories(w http.ResponseWriter, r *http.Request) {
	core, err := h.store.CoreMemories(r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, core)
}

func (h *Handler) reinforcementOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.store.ReinforcementOverview()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type reinforceRequest struct {
	Kind string `json:"kind"`
}

func (h *Handler) reinforceMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req reinforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	kind := memory.ReinforcementType(req.Kind)
	if kind == "" {
		kind = memory.ReinforceManualRecall
	}

	event, err := h.store.Reinforce(id, kind)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, memory.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, event)
}

type trivialRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) markTrivial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req trivialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.store.MarkTrivial(id, req.Reason); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, memory.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "marked trivial"})
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.Sweep(r.Context(), memory.SweepOptions{})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) psycheSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.drives == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "psyche not initialized"})
		return
	}
	payload := map[string]interface{}{
		"drives":     h.drives.Snapshot(),
		"values":     h.drives.ValuesSnapshot(),
		"connection": h.drives.CheckConnection(),
	}
	if h.evolution != nil {
		payload["personality"] = h.evolution.Summary()
		payload["consistency"] = h.evolution.Consistency()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) profileSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.profile == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "profile not initialized"})
		return
	}
	nickname, signature, history := h.profile.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nickname":        nickname,
		"signature":       signature,
		"emotion_history": history,
	})
}

func (h *Handler) growthSummary(w http.ResponseWriter, r *http.Request) {
	if h.growth == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "growth not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.growth.Summary())
}

func (h *Handler) publishNow(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "publisher not initialized"})
		return
	}
	h.publisher.TriggerNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "publish triggered"})
}

func (h *Handler) feedHistory(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "feed not initialized"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.feed.History(limit))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
