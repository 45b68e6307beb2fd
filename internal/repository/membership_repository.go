package repository

import (
	"context"
	"fmt"

	"tablepick-backend/internal/domain"
	"tablepick-backend/pkg/database"
)

// MembershipRepository reads group rosters from PostgreSQL. Membership CRUD
// itself is owned by an external collaborator; this core only consumes the
// current member set.
type MembershipRepository struct {
	db *database.PostgresDB
}

func NewMembershipRepository(db *database.PostgresDB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

var _ MembershipDirectory = (*MembershipRepository)(nil)

// GetMembers returns the scope's current roster as a point-in-time snapshot
func (r *MembershipRepository) GetMembers(ctx context.Context, scopeID string) ([]domain.Member, error) {
	query := `
		SELECT member_id, display_name, joined_at
		FROM group_members
		WHERE scope_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var member domain.Member
		if err := rows.Scan(&member.MemberID, &member.DisplayName, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}

	if len(members) == 0 {
		return nil, domain.ErrScopeNotFound
	}

	return members, nil
}
