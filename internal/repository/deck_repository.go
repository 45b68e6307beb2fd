package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tablepick-backend/internal/domain"
	"tablepick-backend/pkg/database"

	"github.com/jackc/pgx/v5"
)

// DeckRepository persists the shared candidate deck, one row per scope.
// Creation uses the same create-if-absent shape as matches so two members
// opening a fresh scope concurrently end up browsing the same deck.
type DeckRepository struct {
	db *database.PostgresDB
}

func NewDeckRepository(db *database.PostgresDB) *DeckRepository {
	return &DeckRepository{db: db}
}

var _ DeckStore = (*DeckRepository)(nil)

// Get returns the scope's deck
func (r *DeckRepository) Get(ctx context.Context, scopeID string) (*domain.Deck, error) {
	query := `SELECT scope_id, generation, item_ids, created_at FROM decks WHERE scope_id = $1`

	deck, err := r.scanDeck(r.db.Pool.QueryRow(ctx, query, scopeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDeckNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deck: %w", err)
	}

	return deck, nil
}

// CreateIfAbsent creates the first deck for a scope; an existing deck wins
func (r *DeckRepository) CreateIfAbsent(ctx context.Context, deck *domain.Deck) (*domain.Deck, error) {
	itemIDs, err := json.Marshal(deck.ItemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deck items: %w", err)
	}

	query := `
		INSERT INTO decks (scope_id, generation, item_ids)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope_id) DO NOTHING
		RETURNING created_at
	`

	err = r.db.Pool.QueryRow(ctx, query, deck.ScopeID, deck.Generation, itemIDs).Scan(&deck.CreatedAt)
	if err == nil {
		return deck, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to create deck: %w", err)
	}

	return r.Get(ctx, deck.ScopeID)
}

// Replace swaps in a new generation, guarded by the observed one. When a
// concurrent regeneration got there first, the stored deck is returned.
func (r *DeckRepository) Replace(ctx context.Context, scopeID string, observedGeneration int, itemIDs []string) (*domain.Deck, error) {
	encoded, err := json.Marshal(itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deck items: %w", err)
	}

	query := `
		UPDATE decks
		SET generation = generation + 1, item_ids = $3, created_at = now()
		WHERE scope_id = $1 AND generation = $2
		RETURNING scope_id, generation, item_ids, created_at
	`

	deck, err := r.scanDeck(r.db.Pool.QueryRow(ctx, query, scopeID, observedGeneration, encoded))
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the regeneration race; the winner's deck is authoritative.
		return r.Get(ctx, scopeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to replace deck: %w", err)
	}

	return deck, nil
}

// scanDeck reads one deck row
func (r *DeckRepository) scanDeck(row pgx.Row) (*domain.Deck, error) {
	var deck domain.Deck
	var itemIDs []byte

	if err := row.Scan(&deck.ScopeID, &deck.Generation, &itemIDs, &deck.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemIDs, &deck.ItemIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deck items: %w", err)
	}

	return &deck, nil
}
