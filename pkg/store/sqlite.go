package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sigillum/core/pkg/auditlog"
	"github.com/sigillum/core/pkg/classifier"
	"github.com/sigillum/core/pkg/proof"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-node Store backed by an embedded database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
// The sqlite driver serializes writers, so a single connection avoids
// SQLITE_BUSY under concurrent appends.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an existing connection and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
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
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
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

func (s *SQLiteStore) SaveProof(ctx context.Context, p *proof.Object) error {
	query := `INSERT INTO proofs (
		proof_id, interaction_id, content_digest, outcome, ruleset_version, issued_at, key_version, signature
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
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

const proofColumns = `proof_id, interaction_id, content_digest, outcome, ruleset_version, issued_at, key_version, signature`

func (s *SQLiteStore) GetProof(ctx context.Context, proofID string) (*proof.Object, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE proof_id = ?`, proofID)
	return scanProof(row)
}

func (s *SQLiteStore) GetProofByInteraction(ctx context.Context, interactionID string) (*proof.Object, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE interaction_id = ? ORDER BY issued_at DESC LIMIT 1`,
		interactionID)
	return scanProof(row)
}

func (s *SQLiteStore) SaveBatch(ctx context.Context, b *auditlog.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO batches (
		batch_id, root_hash, previous_batch_root, opened_at, anchored_at
	) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (batch_id) DO NOTHING`,
		b.BatchID, b.RootHash, b.PreviousBatchRoot,
		formatTime(b.OpenedAt), formatTime(b.AnchoredAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert batch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Replayed batch already persisted with its leaves.
		return tx.Commit()
	}

	for i, proofID := range b.LeafProofIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO batch_leaves (proof_id, batch_id, leaf_index)
			VALUES (?, ?, ?) ON CONFLICT (proof_id) DO NOTHING`,
			proofID, b.BatchID, i); err != nil {
			return fmt.Errorf("store: insert batch leaf: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*auditlog.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, root_hash, previous_batch_root, opened_at, anchored_at
		 FROM batches WHERE batch_id = ?`, batchID)
	return s.scanBatchWithLeaves(ctx, row)
}

func (s *SQLiteStore) GetBatchForProof(ctx context.Context, proofID string) (*auditlog.Batch, int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, leaf_index FROM batch_leaves WHERE proof_id = ?`, proofID)
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

func (s *SQLiteStore) LatestBatch(ctx context.Context) (*auditlog.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, root_hash, previous_batch_root, opened_at, anchored_at
		 FROM batches ORDER BY seq DESC LIMIT 1`)
	return s.scanBatchWithLeaves(ctx, row)
}

func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]*auditlog.Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, root_hash, previous_batch_root, opened_at, anchored_at
		 FROM batches ORDER BY seq DESC LIMIT ?`, limit)
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

func (s *SQLiteStore) scanBatchWithLeaves(ctx context.Context, row *sql.Row) (*auditlog.Batch, error) {
	b, err := scanBatch(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadLeaves(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *SQLiteStore) loadLeaves(ctx context.Context, b *auditlog.Batch) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT proof_id FROM batch_leaves WHERE batch_id = ? ORDER BY leaf_index`, b.BatchID)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProof(row rowScanner) (*proof.Object, error) {
	var (
		p        proof.Object
		outcome  string
		issuedAt string
	)
	err := row.Scan(&p.ProofID, &p.InteractionID, &p.ContentDigest, &outcome,
		&p.RulesetVersion, &issuedAt, &p.KeyVersion, &p.Signature)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Outcome = classifier.Outcome(outcome)
	p.IssuedAt = parseTime(issuedAt)
	return &p, nil
}

func scanBatch(row rowScanner) (*auditlog.Batch, error) {
	var (
		b          auditlog.Batch
		openedAt   string
		anchoredAt string
	)
	err := row.Scan(&b.BatchID, &b.RootHash, &b.PreviousBatchRoot, &openedAt, &anchoredAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.State = auditlog.StateAnchored
	b.OpenedAt = parseTime(openedAt)
	b.AnchoredAt = parseTime(anchoredAt)
	return &b, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
