package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tablepick-backend/internal/domain"
	"tablepick-backend/internal/middleware"
	"tablepick-backend/internal/service"
	"tablepick-backend/pkg/redis"
)

type SwipeHandler struct {
	swipeService *service.SwipeService
}

func NewSwipeHandler(swipeService *service.SwipeService) *SwipeHandler {
	return &SwipeHandler{
		swipeService: swipeService,
	}
}

// SubmitSwipe handles POST /api/v1/swipes
func (h *SwipeHandler) SubmitSwipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID := getMemberID(r)
	if memberID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req domain.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validateVoteRequest(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Duplicate rapid retries within the idempotency window are answered
	// from the ledger state without a second evaluation. The lock is held
	// only while the write behind it is durable: a failed SubmitVote
	// releases it, so a client retry after a 500 records the vote instead
	// of being answered as a duplicate of a write that never happened.
	// Best effort otherwise: a missing lock only means one extra
	// idempotent upsert.
	idemToken := r.Header.Get("Idempotency-Key")
	if idemToken != "" {
		acquired, err := h.swipeService.TryIdempotencyLock(ctx, memberID+":"+idemToken, redis.TTLVoteIdem)
		if err == nil && !acquired {
			scopeID := service.ResolveScope(memberID, req.ScopeID)
			if stored, err := h.swipeService.StoredVote(ctx, scopeID, req.Snapshot.ItemID, memberID); err == nil {
				response := &domain.VoteResponse{
					ScopeID: stored.ScopeID,
					ItemID:  stored.ItemID,
					Dir:     stored.Dir,
					VotedAt: stored.VotedAt,
				}
				if match, err := h.swipeService.GetMatch(ctx, scopeID, req.Snapshot.ItemID); err == nil {
					response.Match = match
				}
				respondJSON(w, http.StatusOK, response)
				return
			}
			// The lock is held but nothing durable backs it. Fall through
			// and submit; the upsert is idempotent.
		}
	}

	response, err := h.swipeService.SubmitVote(ctx, memberID, &req)
	if err != nil {
		if idemToken != "" {
			h.swipeService.ReleaseIdempotencyLock(ctx, memberID+":"+idemToken)
		}
		if errors.Is(err, domain.ErrInvalidDirection) {
			respondError(w, http.StatusBadRequest, "Direction must be right or left")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to record swipe")
		return
	}

	respondJSON(w, http.StatusCreated, response)
}

// GetVotedItems handles GET /api/v1/swipes/voted
func (h *SwipeHandler) GetVotedItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID := getMemberID(r)
	if memberID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	scopeID := r.URL.Query().Get("scope")

	itemIDs, err := h.swipeService.ListVotedItemIDs(ctx, memberID, scopeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list voted items")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scope_id": service.ResolveScope(memberID, scopeID),
		"item_ids": itemIDs,
	})
}

func (h *SwipeHandler) validateVoteRequest(req *domain.VoteRequest) error {
	if !req.Dir.Valid() {
		return fmt.Errorf("direction must be right or left")
	}

	if req.Snapshot.ItemID == "" {
		return fmt.Errorf("item id is required")
	}

	switch req.Snapshot.Kind {
	case domain.ItemKindRestaurant:
		if req.Snapshot.Restaurant == nil || req.Snapshot.Restaurant.Name == "" {
			return fmt.Errorf("restaurant payload with a name is required")
		}
	case domain.ItemKindRecipe:
		if req.Snapshot.Recipe == nil || req.Snapshot.Recipe.Title == "" {
			return fmt.Errorf("recipe payload with a title is required")
		}
	default:
		return fmt.Errorf("item kind must be restaurant or recipe")
	}

	return nil
}

// Shared handler helpers

func getMemberID(r *http.Request) string {
	if member, ok := r.Context().Value(middleware.MemberContextKey).(*domain.Member); ok && member != nil {
		return member.MemberID
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
