package handler

import (
	"net/http"

	"tablepick-backend/internal/service"

	"github.com/go-chi/chi/v5"
)

type DeckHandler struct {
	deckService *service.DeckService
}

func NewDeckHandler(deckService *service.DeckService) *DeckHandler {
	return &DeckHandler{
		deckService: deckService,
	}
}

// GetDeck handles GET /api/v1/decks/{scopeID}. Use "solo" as the scope ID
// to address the caller's private deck.
func (h *DeckHandler) GetDeck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID := getMemberID(r)
	if memberID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	scopeID := chi.URLParam(r, "scopeID")
	if scopeID == "solo" {
		scopeID = ""
	}

	deck, err := h.deckService.GetOrCreateDeck(ctx, memberID, scopeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load deck")
		return
	}

	respondJSON(w, http.StatusOK, deck)
}
