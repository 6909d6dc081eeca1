package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/au2001/graph-node/internal/domain"
	"github.com/au2001/graph-node/internal/repository"
)

// Mirror reads assignment topology from a replicated view. The pool it wraps
// may point at a read replica, so answers can be stale; callers must treat
// them as advisory.
type Mirror struct {
	pool *pgxpool.Pool
}

// NewMirror constructs a read-only mirror over the given pool. Passing the
// primary pool yields a primary-only mirror.
func NewMirror(pool *pgxpool.Pool) *Mirror {
	return &Mirror{pool: pool}
}

var _ repository.MirrorRepository = (*Mirror)(nil)

// CountNodeAssignments reports how many deployments the mirror believes are
// assigned to a node.
func (m *Mirror) CountNodeAssignments(ctx context.Context, node domain.NodeID) (int, error) {
	const query = `SELECT COUNT(1) FROM assignments WHERE node_id = $1`
	row := m.pool.QueryRow(ctx, query, node.String())
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
