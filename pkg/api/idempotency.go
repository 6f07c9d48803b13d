package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Submission callers retry: the engine already dedups appends by proof id,
// but a retried POST must also get back the exact bytes of the first
// decision, including the receipt. The replay cache keys on the
// caller-chosen Idempotency-Key and serves the stored response with an
// Idempotency-Replay marker.

const maxIdempotencyKeyLen = 255

// storedResponse is the replayable part of a completed submission response.
type storedResponse struct {
	status      int
	contentType string
	body        []byte
	storedAt    time.Time
}

// IdempotencyStorer reserves and resolves idempotency keys. Begin returns
// the stored response for a completed key, or reports that another request
// holding the same key has not finished yet. A reservation must end in
// exactly one Finish or Abandon.
type IdempotencyStorer interface {
	Begin(key string) (done *storedResponse, inFlight bool)
	Finish(key string, resp *storedResponse)
	Abandon(key string)
}

type replayEntry struct {
	pending bool
	resp    *storedResponse
}

// MemoryIdempotencyStore is the in-process IdempotencyStorer. Expired keys
// are pruned lazily on Begin, so the store owns no background goroutine.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*replayEntry
	ttl     time.Duration
	clock   func() time.Time
}

// NewIdempotencyStore creates an in-memory store whose completed entries
// expire after ttl. In-flight reservations never expire; they end only by
// Finish or Abandon.
func NewIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]*replayEntry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

func (s *MemoryIdempotencyStore) Begin(key string) (*storedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for k, e := range s.entries {
		if !e.pending && now.Sub(e.resp.storedAt) > s.ttl {
			delete(s.entries, k)
		}
	}

	if e, ok := s.entries[key]; ok {
		if e.pending {
			return nil, true
		}
		return e.resp, false
	}
	s.entries[key] = &replayEntry{pending: true}
	return nil, false
}

func (s *MemoryIdempotencyStore) Finish(key string, resp *storedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &replayEntry{resp: resp}
}

func (s *MemoryIdempotencyStore) Abandon(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// replayRecorder buffers the response so a successful decision can be
// stored for later replay.
type replayRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rr *replayRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *replayRecorder) Write(b []byte) (int, error) {
	rr.body.Write(b)
	return rr.ResponseWriter.Write(b)
}

// IdempotencyMiddleware makes keyed POSTs safe to retry. The first request
// with a key runs normally and its 2xx response is stored; retries replay
// it byte for byte. A retry that arrives while the first request is still
// running is rejected with 409 rather than risking a double submission.
func IdempotencyMiddleware(store IdempotencyStorer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				WriteBadRequest(w, fmt.Sprintf("Idempotency-Key exceeds %d bytes", maxIdempotencyKeyLen))
				return
			}

			prev, inFlight := store.Begin(key)
			if prev != nil {
				if prev.contentType != "" {
					w.Header().Set("Content-Type", prev.contentType)
				}
				w.Header().Set("Idempotency-Replay", "true")
				w.WriteHeader(prev.status)
				_, _ = w.Write(prev.body)
				return
			}
			if inFlight {
				WriteConflict(w, "a request with this Idempotency-Key is still being processed")
				return
			}

			rec := &replayRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Only settled decisions replay. Errors release the key so the
			// caller's retry gets a fresh attempt.
			if rec.status >= 200 && rec.status < 300 {
				store.Finish(key, &storedResponse{
					status:      rec.status,
					contentType: rec.Header().Get("Content-Type"),
					body:        append([]byte(nil), rec.body.Bytes()...),
					storedAt:    time.Now(),
				})
			} else {
				store.Abandon(key)
			}
		})
	}
}
