package repository

import (
	"context"
	"time"

	"tablepick-backend/internal/domain"
)

// ScopeItem addresses one evaluation unit: an item within a scope.
type ScopeItem struct {
	ScopeID string
	ItemID  string
}

// VoteLedger is the durable store of each member's latest decision per
// (scope, item). Writes are last-write-wins upserts, never appends.
type VoteLedger interface {
	// UpsertVote records or overwrites the member's vote for the key.
	UpsertVote(ctx context.Context, vote *domain.Vote) error

	// GetVote returns the member's current vote for (scope, item), or
	// domain.ErrVoteNotFound.
	GetVote(ctx context.Context, scopeID, itemID, memberID string) (*domain.Vote, error)

	// AffirmativeVoters returns the members whose latest vote on the item
	// is "right". Reflects only current direction, never vote history.
	AffirmativeVoters(ctx context.Context, scopeID, itemID string) ([]string, error)

	// VotedItemIDs returns every item the member has voted on in the scope.
	VotedItemIDs(ctx context.Context, scopeID, memberID string) ([]string, error)

	// ItemSnapshot returns a stored snapshot of the item from any vote in
	// the scope, or domain.ErrItemNotFound when nobody has voted on it.
	ItemSnapshot(ctx context.Context, scopeID, itemID string) (*domain.ItemSnapshot, error)

	// UnmatchedAffirmativeItems lists (scope, item) pairs with at least one
	// affirmative vote since the given time and no match record yet. Solo
	// scopes are excluded. Used by the reconciliation sweep.
	UnmatchedAffirmativeItems(ctx context.Context, since time.Time, limit int) ([]ScopeItem, error)
}

// MatchStore persists match records with an atomic create-if-absent keyed by
// (scope, item).
type MatchStore interface {
	// CreateIfAbsent attempts to create the record. When a record already
	// exists for the key it returns created=false and the existing record;
	// a lost creation race is not an error.
	CreateIfAbsent(ctx context.Context, match *domain.MatchRecord) (created bool, result *domain.MatchRecord, err error)

	// Get returns the match for the key, or domain.ErrMatchNotFound.
	Get(ctx context.Context, scopeID, itemID string) (*domain.MatchRecord, error)

	// ListActive returns all active matches in a scope, newest first.
	ListActive(ctx context.Context, scopeID string) ([]domain.MatchRecord, error)

	// UpdateStatus transitions the match status. Identity and creation-time
	// snapshot fields are immutable.
	UpdateStatus(ctx context.Context, scopeID, itemID string, status domain.MatchStatus) (*domain.MatchRecord, error)
}

// MembershipDirectory resolves a scope to its current member roster. The
// roster is owned externally; reads are point-in-time snapshots that may
// race with membership changes.
type MembershipDirectory interface {
	// GetMembers returns the current roster, or domain.ErrScopeNotFound for
	// an unknown scope.
	GetMembers(ctx context.Context, scopeID string) ([]domain.Member, error)
}

// DeckStore persists the shared candidate deck, one per scope.
type DeckStore interface {
	// Get returns the scope's deck, or domain.ErrDeckNotFound.
	Get(ctx context.Context, scopeID string) (*domain.Deck, error)

	// CreateIfAbsent creates the first deck for a scope; when one already
	// exists it returns the existing deck unchanged.
	CreateIfAbsent(ctx context.Context, deck *domain.Deck) (*domain.Deck, error)

	// Replace swaps in a new generation, guarded by the generation the
	// caller observed so concurrent regenerations collapse to one.
	Replace(ctx context.Context, scopeID string, observedGeneration int, itemIDs []string) (*domain.Deck, error)
}
