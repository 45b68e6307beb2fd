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

// MatchRepository is the PostgreSQL match store. The matches table is keyed
// by (scope_id, item_id), which makes INSERT ... ON CONFLICT DO NOTHING the
// atomic create-if-absent the materializer requires: when several members
// cross the threshold in overlapping windows, the table's primary key
// arbitrates and exactly one insert wins.
type MatchRepository struct {
	db *database.PostgresDB
}

func NewMatchRepository(db *database.PostgresDB) *MatchRepository {
	return &MatchRepository{db: db}
}

var _ MatchStore = (*MatchRepository)(nil)

const matchColumns = `
	match_id, scope_id, item_id, member_ids, required_count,
	affirmative_count, unanimous, status, item_snapshot, created_at, updated_at
`

// CreateIfAbsent inserts the match unless one already exists for the key.
// Losing the race is a success: the pre-existing record is returned with
// created=false and no error is ever raised for "already matched".
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, match *domain.MatchRecord) (bool, *domain.MatchRecord, error) {
	snapshot, err := json.Marshal(match.Snapshot)
	if err != nil {
		return false, nil, fmt.Errorf("failed to marshal item snapshot: %w", err)
	}

	query := `
		INSERT INTO matches (
			match_id, scope_id, item_id, member_ids, required_count,
			affirmative_count, unanimous, status, item_kind, item_snapshot
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (scope_id, item_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		match.MatchID,
		match.ScopeID,
		match.ItemID,
		match.MemberIDs,
		match.RequiredCount,
		match.AffirmativeCount,
		match.Unanimous,
		string(match.Status),
		string(match.Snapshot.Kind),
		snapshot,
	).Scan(&match.CreatedAt, &match.UpdatedAt)

	if err == nil {
		return true, match, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("failed to create match: %w", err)
	}

	// The key was taken by a concurrent creation; surface that record.
	existing, err := r.Get(ctx, match.ScopeID, match.ItemID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load existing match after lost race: %w", err)
	}
	return false, existing, nil
}

// Get returns the match for (scope, item)
func (r *MatchRepository) Get(ctx context.Context, scopeID, itemID string) (*domain.MatchRecord, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE scope_id = $1 AND item_id = $2`

	match, err := r.scanMatch(r.db.Pool.QueryRow(ctx, query, scopeID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return match, nil
}

// ListActive returns all active matches in a scope, newest first
func (r *MatchRepository) ListActive(ctx context.Context, scopeID string) ([]domain.MatchRecord, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE scope_id = $1 AND status = 'active'
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.MatchRecord
	for rows.Next() {
		match, err := r.scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, *match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active matches: %w", err)
	}

	return matches, nil
}

// UpdateStatus transitions the match status, leaving every other field alone
func (r *MatchRepository) UpdateStatus(ctx context.Context, scopeID, itemID string, status domain.MatchStatus) (*domain.MatchRecord, error) {
	query := `
		UPDATE matches
		SET status = $3, updated_at = now()
		WHERE scope_id = $1 AND item_id = $2
		RETURNING ` + matchColumns

	match, err := r.scanMatch(r.db.Pool.QueryRow(ctx, query, scopeID, itemID, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update match status: %w", err)
	}

	return match, nil
}

// scanMatch reads one match row in matchColumns order
func (r *MatchRepository) scanMatch(row pgx.Row) (*domain.MatchRecord, error) {
	var match domain.MatchRecord
	var status string
	var snapshot []byte

	err := row.Scan(
		&match.MatchID,
		&match.ScopeID,
		&match.ItemID,
		&match.MemberIDs,
		&match.RequiredCount,
		&match.AffirmativeCount,
		&match.Unanimous,
		&status,
		&snapshot,
		&match.CreatedAt,
		&match.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	match.Status = domain.MatchStatus(status)
	if err := json.Unmarshal(snapshot, &match.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item snapshot: %w", err)
	}

	return &match, nil
}
