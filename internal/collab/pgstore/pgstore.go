// Package pgstore implements collab.GraphStore against Postgres via pgx,
// adapted from the teacher's common/repository.RunRepository: the same
// db.DB pooled-connection wrapper, the same query-then-wrap-error shape, now
// persisting one row per terminal execution instead of one per workflow run.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyzr/orchestrator/common/db"
	"github.com/lyzr/orchestrator/internal/collab"
)

// Store persists terminal execution snapshots to the `execution` table.
type Store struct {
	db *db.DB
}

// New constructs a Store over an existing connection pool.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// Record inserts snapshot, called exactly once per execution by the engine
// (spec §6). Conflicts on execution_id are ignored: the engine never retries
// a commit for the same execution.
func (s *Store) Record(ctx context.Context, snapshot collab.Snapshot) error {
	identity, err := json.Marshal(snapshot.Identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	trace, err := json.Marshal(snapshot.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	query := `
		INSERT INTO execution (execution_id, user_id, status, identity, cost_total, tokens_total, trace, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (execution_id) DO NOTHING
	`

	_, err = s.db.Exec(ctx, query,
		snapshot.ExecutionID,
		snapshot.UserID,
		snapshot.Status,
		identity,
		snapshot.CostInfo.TotalCost,
		snapshot.CostInfo.TotalTokens,
		trace,
		snapshot.CreatedAt,
		snapshot.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}
