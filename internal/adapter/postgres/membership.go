package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipStore answers guild membership lookups from the guild_members
// table maintained by the guildplan backend and gateway bot. It is the
// reference membership.Provider; calls are bounded by the caller's
// context deadline.
type MembershipStore struct {
	pool *pgxpool.Pool
}

// NewMembershipStore creates a MembershipStore on the given pool.
func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

// Memberships returns the guild IDs the identity currently belongs to.
// An identity with no rows is a member of nothing, not an error.
func (s *MembershipStore) Memberships(ctx context.Context, identity string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT guild_id FROM guild_members WHERE user_id = $1`, identity)
	if err != nil {
		return nil, fmt.Errorf("query guild members: %w", err)
	}
	defer rows.Close()

	var guilds []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan guild member: %w", err)
		}
		guilds = append(guilds, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guild members: %w", err)
	}

	return guilds, nil
}
