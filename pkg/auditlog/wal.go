package auditlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sigillum/core/pkg/proof"
)

// walRecord is one line of the write-ahead log.
type walRecord struct {
	Kind string `json:"kind"` // "append" or "anchored"
	// Append records carry the whole proof so replay can rebuild the pending
	// queue without consulting any other store.
	Proof *proof.Object `json:"proof,omitempty"`
	// Anchored records mark every proof of a closed batch as safe to drop
	// from replay.
	BatchID  string   `json:"batch_id,omitempty"`
	ProofIDs []string `json:"proof_ids,omitempty"`
}

// WAL is the durability floor of the audit log: an append is acknowledged
// only after its record is fsynced here. On restart, Replay returns the
// proofs that were appended but never anchored.
type WAL struct {
	mu   sync.Mutex
	file *os.File
}

// OpenWAL opens (or creates) the log file at path.
func OpenWAL(path string) (*WAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("auditlog: wal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open wal: %w", err)
	}
	return &WAL{file: f}, nil
}

// LogAppend durably records a pending proof before it is acknowledged.
func (w *WAL) LogAppend(p *proof.Object) error {
	return w.write(walRecord{Kind: "append", Proof: p})
}

// LogAnchored durably records that a batch anchored, retiring its proofs
// from replay.
func (w *WAL) LogAnchored(batchID string, proofIDs []string) error {
	return w.write(walRecord{Kind: "anchored", BatchID: batchID, ProofIDs: proofIDs})
}

func (w *WAL) write(rec walRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("auditlog: marshal wal record: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("auditlog: write wal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("auditlog: sync wal: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReplayWAL reads the log at path and returns the proofs that were appended
// but not covered by a later anchored record, in original append order.
// A missing file is an empty log, not an error.
func ReplayWAL(path string) ([]*proof.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("auditlog: open wal for replay: %w", err)
	}
	defer func() { _ = f.Close() }()

	var (
		order    []string
		pending  = make(map[string]*proof.Object)
		scanner  = bufio.NewScanner(f)
		lineNo   int
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec walRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn final line from a crash mid-write is expected; anything
			// else is corruption and must surface.
			if scanner.Scan() {
				return nil, fmt.Errorf("auditlog: corrupt wal record at line %d: %w", lineNo, err)
			}
			break
		}
		switch rec.Kind {
		case "append":
			if rec.Proof == nil {
				return nil, fmt.Errorf("auditlog: wal append record without proof at line %d", lineNo)
			}
			if _, seen := pending[rec.Proof.ProofID]; !seen {
				order = append(order, rec.Proof.ProofID)
			}
			pending[rec.Proof.ProofID] = rec.Proof
		case "anchored":
			for _, id := range rec.ProofIDs {
				delete(pending, id)
			}
		default:
			return nil, fmt.Errorf("auditlog: unknown wal record kind %q at line %d", rec.Kind, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("auditlog: scan wal: %w", err)
	}

	out := make([]*proof.Object, 0, len(pending))
	for _, id := range order {
		if p, ok := pending[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
