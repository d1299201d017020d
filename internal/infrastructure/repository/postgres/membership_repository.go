package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// MembershipRepository answers tenant membership checks from organization_members.
type MembershipRepository struct {
	db *sql.DB
}

func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) IsMember(ctx context.Context, userID, tenantID string) (bool, error) {
	if userID == "" || tenantID == "" {
		return false, nil
	}
	var member bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM organization_members WHERE organization_id = $1 AND user_id = $2
)
`, tenantID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

// AddMember is used by seeding and tests; repeated inserts are no-ops.
func (r *MembershipRepository) AddMember(ctx context.Context, userID, tenantID, role string) error {
	if role == "" {
		role = "member"
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO organization_members (organization_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (organization_id, user_id) DO NOTHING
`, tenantID, userID, role)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}
