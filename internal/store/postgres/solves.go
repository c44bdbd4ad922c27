package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Solve is a journal record of an accepted proof-of-work solution.
type Solve struct {
	ID            int64     `json:"id"`
	WorkHash      string    `json:"work_hash"`
	ChainID       int64     `json:"chain_id"`
	Height        int64     `json:"height"`
	MinerAccount  string    `json:"miner_account"`
	PayoutAddress string    `json:"payout_address"`
	TxCount       int       `json:"tx_count"`
	IssuedAt      time.Time `json:"issued_at"`
	SolvedAt      time.Time `json:"solved_at"`
}

// SolveRepository handles solve journal database operations
type SolveRepository struct {
	db *sql.DB
}

// NewSolveRepository creates a new solve repository
func NewSolveRepository(db *sql.DB) *SolveRepository {
	return &SolveRepository{db: db}
}

// CreateSolve inserts a new solve journal record
func (r *SolveRepository) CreateSolve(ctx context.Context, solve *Solve) error {
	query := `
		INSERT INTO solves (work_hash, chain_id, height, miner_account, payout_address, tx_count, issued_at, solved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		solve.WorkHash, solve.ChainID, solve.Height, solve.MinerAccount,
		solve.PayoutAddress, solve.TxCount, solve.IssuedAt, solve.SolvedAt,
	).Scan(&solve.ID)

	if err != nil {
		return fmt.Errorf("failed to create solve: %w", err)
	}

	return nil
}

// RecentSolves retrieves the most recent solves with pagination
func (r *SolveRepository) RecentSolves(ctx context.Context, limit, offset int) ([]*Solve, error) {
	query := `
		SELECT id, work_hash, chain_id, height, miner_account, payout_address, tx_count, issued_at, solved_at
		FROM solves
		ORDER BY solved_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query solves: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var solves []*Solve
	for rows.Next() {
		solve := &Solve{}
		err := rows.Scan(
			&solve.ID, &solve.WorkHash, &solve.ChainID, &solve.Height,
			&solve.MinerAccount, &solve.PayoutAddress, &solve.TxCount,
			&solve.IssuedAt, &solve.SolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan solve: %w", err)
		}
		solves = append(solves, solve)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading solves: %w", err)
	}

	return solves, nil
}

// SolvesByMiner retrieves recent solves for a specific miner account
func (r *SolveRepository) SolvesByMiner(ctx context.Context, account string, limit int) ([]*Solve, error) {
	query := `
		SELECT id, work_hash, chain_id, height, miner_account, payout_address, tx_count, issued_at, solved_at
		FROM solves
		WHERE miner_account = $1
		ORDER BY solved_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, account, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query miner solves: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var solves []*Solve
	for rows.Next() {
		solve := &Solve{}
		err := rows.Scan(
			&solve.ID, &solve.WorkHash, &solve.ChainID, &solve.Height,
			&solve.MinerAccount, &solve.PayoutAddress, &solve.TxCount,
			&solve.IssuedAt, &solve.SolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan solve: %w", err)
		}
		solves = append(solves, solve)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading solves: %w", err)
	}

	return solves, nil
}

// CountSolvesSince counts solves recorded after the given time
func (r *SolveRepository) CountSolvesSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM solves WHERE solved_at >= $1`

	if err := r.db.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count solves: %w", err)
	}

	return count, nil
}
