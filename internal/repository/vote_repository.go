package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tablepick-backend/internal/domain"
	"tablepick-backend/pkg/database"

	"github.com/jackc/pgx/v5"
)

// VoteRepository is the PostgreSQL vote ledger. The votes table is keyed by
// (scope_id, item_id, member_id); every write goes through an upsert so the
// ledger holds exactly one row per key, holding the latest direction.
type VoteRepository struct {
	db *database.PostgresDB
}

func NewVoteRepository(db *database.PostgresDB) *VoteRepository {
	return &VoteRepository{db: db}
}

var _ VoteLedger = (*VoteRepository)(nil)

// UpsertVote records or overwrites the member's vote for (scope, item)
func (r *VoteRepository) UpsertVote(ctx context.Context, vote *domain.Vote) error {
	snapshot, err := json.Marshal(vote.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal item snapshot: %w", err)
	}

	query := `
		INSERT INTO votes (scope_id, item_id, member_id, direction, item_kind, item_snapshot, voted_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (scope_id, item_id, member_id)
		DO UPDATE SET direction = EXCLUDED.direction,
		              item_kind = EXCLUDED.item_kind,
		              item_snapshot = EXCLUDED.item_snapshot,
		              voted_at = now()
		RETURNING voted_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		vote.ScopeID,
		vote.ItemID,
		vote.MemberID,
		string(vote.Dir),
		string(vote.Snapshot.Kind),
		snapshot,
	).Scan(&vote.VotedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}

	return nil
}

// GetVote returns the member's current vote for (scope, item)
func (r *VoteRepository) GetVote(ctx context.Context, scopeID, itemID, memberID string) (*domain.Vote, error) {
	query := `
		SELECT scope_id, item_id, member_id, direction, item_snapshot, voted_at
		FROM votes
		WHERE scope_id = $1 AND item_id = $2 AND member_id = $3
	`

	var vote domain.Vote
	var direction string
	var snapshot []byte
	err := r.db.Pool.QueryRow(ctx, query, scopeID, itemID, memberID).Scan(
		&vote.ScopeID,
		&vote.ItemID,
		&vote.MemberID,
		&direction,
		&snapshot,
		&vote.VotedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVoteNotFound
		}
		return nil, fmt.Errorf("failed to query vote: %w", err)
	}

	vote.Dir = domain.Direction(direction)
	if err := json.Unmarshal(snapshot, &vote.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item snapshot: %w", err)
	}

	return &vote, nil
}

// AffirmativeVoters returns members whose latest vote on the item is "right"
func (r *VoteRepository) AffirmativeVoters(ctx context.Context, scopeID, itemID string) ([]string, error) {
	query := `
		SELECT member_id
		FROM votes
		WHERE scope_id = $1 AND item_id = $2 AND direction = 'right'
	`

	rows, err := r.db.Pool.Query(ctx, query, scopeID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query affirmative voters: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var memberID string
		if err := rows.Scan(&memberID); err != nil {
			return nil, fmt.Errorf("failed to scan voter: %w", err)
		}
		members = append(members, memberID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read affirmative voters: %w", err)
	}

	return members, nil
}

// VotedItemIDs returns every item the member has voted on in the scope
func (r *VoteRepository) VotedItemIDs(ctx context.Context, scopeID, memberID string) ([]string, error) {
	query := `
		SELECT item_id
		FROM votes
		WHERE scope_id = $1 AND member_id = $2
	`

	rows, err := r.db.Pool.Query(ctx, query, scopeID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query voted items: %w", err)
	}
	defer rows.Close()

	var itemIDs []string
	for rows.Next() {
		var itemID string
		if err := rows.Scan(&itemID); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		itemIDs = append(itemIDs, itemID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read voted items: %w", err)
	}

	return itemIDs, nil
}

// ItemSnapshot returns a stored snapshot of the item from the most recent
// vote in the scope
func (r *VoteRepository) ItemSnapshot(ctx context.Context, scopeID, itemID string) (*domain.ItemSnapshot, error) {
	query := `
		SELECT item_snapshot
		FROM votes
		WHERE scope_id = $1 AND item_id = $2
		ORDER BY voted_at DESC
		LIMIT 1
	`

	var data []byte
	err := r.db.Pool.QueryRow(ctx, query, scopeID, itemID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to query item snapshot: %w", err)
	}

	var snapshot domain.ItemSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item snapshot: %w", err)
	}

	return &snapshot, nil
}

// UnmatchedAffirmativeItems lists recent affirmative (scope, item) pairs in
// group scopes that have no match record yet
func (r *VoteRepository) UnmatchedAffirmativeItems(ctx context.Context, since time.Time, limit int) ([]ScopeItem, error) {
	query := `
		SELECT DISTINCT v.scope_id, v.item_id
		FROM votes v
		LEFT JOIN matches m ON m.scope_id = v.scope_id AND m.item_id = v.item_id
		WHERE v.direction = 'right'
		  AND v.voted_at >= $1
		  AND v.scope_id NOT LIKE 'solo:%'
		  AND m.scope_id IS NULL
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched affirmative items: %w", err)
	}
	defer rows.Close()

	var pairs []ScopeItem
	for rows.Next() {
		var pair ScopeItem
		if err := rows.Scan(&pair.ScopeID, &pair.ItemID); err != nil {
			return nil, fmt.Errorf("failed to scan scope item: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read unmatched affirmative items: %w", err)
	}

	return pairs, nil
}
