package integrity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores the verifier checkpoint in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL checkpoint repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LoadCheckpoint returns the stored checkpoint, or a zero checkpoint when no
// scan has run yet.
func (r *PGRepository) LoadCheckpoint(ctx context.Context) (Checkpoint, error) {
	var cp Checkpoint
	err := r.pool.QueryRow(ctx,
		`SELECT seq, hash, verified_at FROM integrity_checkpoints WHERE id = 1`).
		Scan(&cp.Seq, &cp.Hash, &cp.VerifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// SaveCheckpoint persists the verifier position.
func (r *PGRepository) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO integrity_checkpoints (id, seq, hash, verified_at)
		 VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET seq = $1, hash = $2, verified_at = $3`,
		cp.Seq, cp.Hash, cp.VerifiedAt)
	if err != nil {
		return fmt.Errorf("integrity: save checkpoint: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
