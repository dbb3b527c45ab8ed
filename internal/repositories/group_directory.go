package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-hub/internal/models"
)

var ErrMembershipNotFound = errors.New("membership not found")

// GroupDirectory exposes the live roster of group conversations. Roster
// CRUD happens elsewhere; the hub only reads, and always at call time
// so adds, removes and bans take effect on the very next message.
type GroupDirectory interface {
	GetActiveMembers(ctx context.Context, groupID string) ([]string, error)
	GetMembership(ctx context.Context, groupID, userID string) (models.Membership, error)
}

// GroupDirectoryRepo is a sqlx view over the shared roster table.
type GroupDirectoryRepo struct {
	db *sqlx.DB
}

// NewGroupDirectoryRepo constructs a GroupDirectoryRepo.
func NewGroupDirectoryRepo(db *sqlx.DB) *GroupDirectoryRepo {
	return &GroupDirectoryRepo{db: db}
}

// GetActiveMembers lists user ids with active membership.
func (r *GroupDirectoryRepo) GetActiveMembers(ctx context.Context, groupID string) ([]string, error) {
	var members []string
	err := r.db.SelectContext(ctx, &members, `SELECT user_id FROM group_members WHERE group_id=$1 AND status='active'`, groupID)
	return members, err
}

// GetMembership returns one user's standing in a group, active or not.
func (r *GroupDirectoryRepo) GetMembership(ctx context.Context, groupID, userID string) (models.Membership, error) {
	var membership models.Membership
	err := r.db.GetContext(ctx, &membership, `SELECT group_id, user_id, status, is_admin FROM group_members
        WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return membership, err
}
