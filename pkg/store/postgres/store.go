package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS clmm_accounts (
	account_key TEXT PRIMARY KEY,
	data        BYTEA NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store provides Postgres persistence for program accounts.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the accounts table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Get(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM clmm_accounts WHERE account_key = $1`, key.String()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pkg.ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Commit applies the writes as one batch inside a transaction.
func (s *Store) Commit(ctx context.Context, writes []pkg.AccountWrite) error {
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, w := range writes {
		if w.Reclaim {
			batch.Queue(`DELETE FROM clmm_accounts WHERE account_key = $1`, w.Key.String())
			continue
		}
		batch.Queue(`
			INSERT INTO clmm_accounts (account_key, data, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (account_key)
			DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = now()
		`, w.Key.String(), w.Data)
	}

	br := tx.SendBatch(ctx, batch)
	for _, w := range writes {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("write %s: %w", w.Key, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
