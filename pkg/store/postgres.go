package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sigillum/core/pkg/auditlog"
	"github.com/sigillum/core/pkg/proof"

	_ "github.com/lib/pq"
)

// PostgresStore is the shared-deployment Store.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with the given DSN and runs migrations.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return NewPostgresStore(db)
}

// NewPostgresStore wraps an existing connection and runs migrations.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS proofs (
		proof_id TEXT PRIMARY KEY,
		interaction_id TEXT NOT NULL,
		content_digest TEXT NOT NULL,
		outcome TEXT NOT NULL,
		ruleset_version TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		key_version TEXT NOT NULL,
		signature TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_proofs_interaction ON proofs (interaction_id);

	CREATE TABLE IF NOT EXISTS batches (
		seq BIGSERIAL PRIMARY KEY,
		batch_id TEXT UNIQUE NOT NULL,
		root_hash TEXT NOT NULL,
		previous_batch_root TEXT NOT NULL DEFAULT '',
		opened_at TEXT NOT NULL,
		anchored_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS batch_leaves (
		proof_id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		leaf_index INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leaves_batch ON batch_leaves (batch_id, leaf_index);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresStore) SaveProof(ctx context.Context, p *proof.Object) error {
	query := `INSERT INTO proofs (
		proof_id, interaction_id, content_digest, outcome, ruleset_version, issued_at, key_version, signature
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (proof_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		p.ProofID, p.InteractionID, p.ContentDigest, string(p.Outcome), p.RulesetVersion,
		formatTime(p.IssuedAt), p.KeyVersion, p.Signature,
	)
	if err != nil {
		return fmt.Errorf("store: insert proof: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProof(ctx context.Context, proofID string) (*proof.Object, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE proof_id = $1`, proofID)
	return scanProof(row)
}

func (s *PostgresStore) GetProofByInteraction(ctx context.Context, interactionID string) (*proof.Object, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE interaction_id = $1 ORDER BY issued_at DESC LIMIT 1`,
		interactionID)
	return scanProof(row)
}

func (s *PostgresStore) SaveBatch(ctx context.Context, b *auditlog.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO batches (
		batch_id, root_hash, previous_batch_root, opened_at, anchored_at
	) VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (batch_id) DO NOTHING`,
		b.BatchID, b.RootHash, b.PreviousBatchRoot,
		formatTime(b.OpenedAt), formatTime(b.AnchoredAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert batch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tx.Commit()
	}

	for i, proofID := range b.LeafProofIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO batch_leaves (proof_id, batch_id, leaf_index)
			VALUES ($1, $2, $3) ON CONFLICT (proof_id) DO NOTHING`,
			proofID, b.BatchID, i); err != nil {
			return fmt.Errorf("store: insert batch leaf: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (*auditlog.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, root_hash, previous_batch_root, opened_at, anchored_at
		 FROM batches WHERE batch_id = $1`, batchID)
	b, err := scanBatch(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadLeaves(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) GetBatchForProof(ctx context.Context, proofID string) (*auditlog.Batch, int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, leaf_index FROM batch_leaves WHERE proof_id = $1`, proofID)
	var batchID string
	var index int
	if err := row.Scan(&batchID, &index); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, 0, err
	}
	return b, index, nil
}

func (s *PostgresStore) LatestBatch(ctx context.Context) (*auditlog.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, root_hash, previous_batch_root, opened_at, anchored_at
		 FROM batches ORDER BY seq DESC LIMIT 1`)
	b, err := scanBatch(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadLeaves(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, limit int) ([]*auditlog.Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, root_hash, previous_batch_root, opened_at, anchored_at
		 FROM batches ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var batches []*auditlog.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, b := range batches {
		if err := s.loadLeaves(ctx, b); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

func (s *PostgresStore) loadLeaves(ctx context.Context, b *auditlog.Batch) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT proof_id FROM batch_leaves WHERE batch_id = $1 ORDER BY leaf_index`, b.BatchID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		b.LeafProofIDs = append(b.LeafProofIDs, id)
	}
	return rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
