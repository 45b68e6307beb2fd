package handler

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tablepick-backend/internal/domain"
	"tablepick-backend/internal/service"
	"tablepick-backend/pkg/logger"
)

// heartbeat interval for SSE streams; keeps intermediaries from timing the
// connection out between snapshots
const streamHeartbeat = 25 * time.Second

type MatchHandler struct {
	swipeService *service.SwipeService
	notifier     service.MatchNotifier
	logger       *logger.Logger
}

func NewMatchHandler(swipeService *service.SwipeService, notifier service.MatchNotifier, logger *logger.Logger) *MatchHandler {
	return &MatchHandler{
		swipeService: swipeService,
		notifier:     notifier,
		logger:       logger,
	}
}

// GetMatches handles GET /api/v1/matches?scope= (polling endpoint)
func (h *MatchHandler) GetMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID := getMemberID(r)
	if memberID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	scopeID := r.URL.Query().Get("scope")
	if scopeID == "" {
		respondError(w, http.StatusBadRequest, "scope query parameter is required")
		return
	}

	matches, err := h.swipeService.ListActiveMatches(ctx, scopeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list matches")
		return
	}

	etag := generateETag(matches)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=10")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scope_id": scopeID,
		"matches":  matches,
	})
}

// StreamMatches handles GET /api/v1/matches/stream?scope= (SSE endpoint).
// Emits the current snapshot immediately, then a fresh snapshot on every
// change in the scope.
func (h *MatchHandler) StreamMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID := getMemberID(r)
	if memberID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	scopeID := r.URL.Query().Get("scope")
	if scopeID == "" {
		respondError(w, http.StatusBadRequest, "scope query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	if h.notifier == nil {
		respondError(w, http.StatusServiceUnavailable, "Streaming is not available")
		return
	}

	snapshots, cancel, err := h.notifier.SubscribeMatches(ctx, scopeID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to open match subscription")
		respondError(w, http.StatusServiceUnavailable, "Failed to open stream")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial snapshot, so a client that reconnects never waits for the
	// next change to learn the current state.
	current, err := h.swipeService.ListActiveMatches(ctx, scopeID)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to load initial snapshot for stream")
		current = []domain.MatchRecord{}
	}
	h.writeEvent(w, flusher, scopeID, current)

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case matches, ok := <-snapshots:
			if !ok {
				return
			}
			h.writeEvent(w, flusher, scopeID, matches)
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// ResolveMatch handles POST /api/v1/matches/resolve
func (h *MatchHandler) ResolveMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID := getMemberID(r)
	if memberID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req domain.MatchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.ScopeID == "" || req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "scope_id and item_id are required")
		return
	}

	match, err := h.swipeService.UpdateMatchStatus(ctx, &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStatus) {
			respondError(w, http.StatusBadRequest, "Status must be active, resolved, or archived")
			return
		}
		if errors.Is(err, domain.ErrMatchNotFound) {
			respondError(w, http.StatusNotFound, "Match not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to update match")
		return
	}

	respondJSON(w, http.StatusOK, match)
}

func (h *MatchHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, scopeID string, matches []domain.MatchRecord) {
	if matches == nil {
		matches = []domain.MatchRecord{}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"scope_id": scopeID,
		"matches":  matches,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal stream event")
		return
	}
	fmt.Fprintf(w, "event: matches\ndata: %s\n\n", payload)
	flusher.Flush()
}

func generateETag(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf(`"%x"`, hash)
}
