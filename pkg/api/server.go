// Package api exposes the compliance engine over HTTP: submission, proof
// retrieval, inclusion proofs, batch records, and independent verification.
// Error responses follow RFC 7807.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sigillum/core/pkg/auditlog"
	"github.com/sigillum/core/pkg/classifier"
	"github.com/sigillum/core/pkg/config"
	"github.com/sigillum/core/pkg/engine"
	"github.com/sigillum/core/pkg/keyring"
	"github.com/sigillum/core/pkg/merkle"
	"github.com/sigillum/core/pkg/observability"
	"github.com/sigillum/core/pkg/proof"
	"github.com/sigillum/core/pkg/ruleset"
	"github.com/sigillum/core/pkg/store"
	"github.com/sigillum/core/pkg/verify"
)

const maxBodyBytes = 1 << 20 // 1 MiB request body cap

// Server carries the HTTP surface and its collaborators.
type Server struct {
	engine   *engine.Engine
	verifier *verify.Verifier
	log      *auditlog.Log
	registry *ruleset.Registry
	ring     *keyring.FileKeyRing
	obs      *observability.Provider
	logger   *slog.Logger

	rulesDir string
	profile  *config.JurisdictionProfile
}

// ServerConfig assembles a server. Ring and Registry enable the admin
// endpoints; Obs and Profile are optional.
type ServerConfig struct {
	Engine   *engine.Engine
	Verifier *verify.Verifier
	Log      *auditlog.Log
	Registry *ruleset.Registry
	Ring     *keyring.FileKeyRing
	Obs      *observability.Provider
	RulesDir string

	// Profile scopes submissions to a jurisdiction: its locales gate
	// requests and its pinned ruleset version fills in omitted ones.
	Profile *config.JurisdictionProfile
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		engine:   cfg.Engine,
		verifier: cfg.Verifier,
		log:      cfg.Log,
		registry: cfg.Registry,
		ring:     cfg.Ring,
		obs:      cfg.Obs,
		rulesDir: cfg.RulesDir,
		profile:  cfg.Profile,
		logger:   slog.Default().With("component", "api"),
	}
}

// Handler builds the route table. Public routes sit behind rate limiting and
// idempotent replay; admin routes additionally require a JWT with the admin
// role. A nil validator fails all admin requests closed.
func (s *Server) Handler(limiter *GlobalRateLimiter, idem IdempotencyStorer, validator *JWTValidator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/interactions", s.handleSubmit)
	mux.HandleFunc("GET /v1/proofs/{id}", s.handleGetProof)
	mux.HandleFunc("GET /v1/proofs/{id}/inclusion", s.handleGetInclusion)
	mux.HandleFunc("GET /v1/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("POST /v1/verify", s.handleVerify)

	admin := http.NewServeMux()
	admin.HandleFunc("POST /admin/batches/close", s.handleCloseBatch)
	admin.HandleFunc("POST /admin/keys/rotate", s.handleRotateKey)
	admin.HandleFunc("POST /admin/rulesets/reload", s.handleReloadRulesets)
	mux.Handle("/admin/", AdminMiddleware(validator)(admin))

	var h http.Handler = mux
	if idem != nil {
		h = IdempotencyMiddleware(idem)(h)
	}
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return LoggingMiddleware(s.logger)(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": s.log.Pending(),
		"root":    s.log.LatestRoot(),
	})
}

// submitRequest is the wire form of one interaction submission. Content is
// classified and digested; it is never stored or logged.
type submitRequest struct {
	InteractionID   string `json:"interaction_id,omitempty"`
	Content         string `json:"content"`
	Locale          string `json:"locale"`
	RulesetVersion  string `json:"ruleset_version"`
	ParticipantRole string `json:"participant_role,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if s.profile != nil {
		if !s.profile.ServesLocale(req.Locale) {
			WriteUnprocessable(w, fmt.Sprintf("locale %q is not served in jurisdiction %q", req.Locale, s.profile.Code))
			return
		}
		if req.RulesetVersion == "" {
			req.RulesetVersion = s.profile.RulesetVersion
		}
	}

	ctx, finish := s.trackOperation(r.Context(), "api.submit")
	dec, err := s.engine.Process(ctx, engine.Submission{
		InteractionID:   req.InteractionID,
		Content:         req.Content,
		Locale:          req.Locale,
		RulesetVersion:  req.RulesetVersion,
		ParticipantRole: req.ParticipantRole,
	})
	finish(err)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptyContent):
			WriteBadRequest(w, "content must not be empty")
		case errors.Is(err, classifier.ErrRulesetNotFound):
			WriteUnprocessable(w, fmt.Sprintf("unknown ruleset version %q", req.RulesetVersion))
		case errors.Is(err, classifier.ErrUnsupportedLocale):
			WriteUnprocessable(w, fmt.Sprintf("locale %q is not served by ruleset %q", req.Locale, req.RulesetVersion))
		case errors.Is(err, auditlog.ErrConcurrencyConflict):
			WriteConflict(w, "audit log contention, retry the submission")
		default:
			WriteInternal(w, err)
		}
		return
	}

	if s.obs != nil {
		s.obs.RecordProof(ctx, string(dec.Outcome))
	}
	writeJSON(w, http.StatusCreated, dec)
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	proofID := r.PathValue("id")
	p, err := s.engine.GetProof(r.Context(), proofID)
	if err != nil {
		if errors.Is(err, auditlog.ErrUnknownProof) {
			WriteNotFound(w, fmt.Sprintf("proof %s not found", proofID))
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// inclusionResponse pairs an inclusion path with the batch record that
// anchors it, so a caller can verify offline with nothing else.
type inclusionResponse struct {
	Proof     *proof.Object          `json:"proof"`
	Inclusion *merkle.InclusionProof `json:"inclusion"`
	Batch     *auditlog.Batch        `json:"batch"`
}

func (s *Server) handleGetInclusion(w http.ResponseWriter, r *http.Request) {
	proofID := r.PathValue("id")

	p, err := s.engine.GetProof(r.Context(), proofID)
	if err != nil {
		if errors.Is(err, auditlog.ErrUnknownProof) {
			WriteNotFound(w, fmt.Sprintf("proof %s not found", proofID))
			return
		}
		WriteInternal(w, err)
		return
	}

	ip, batch, err := s.engine.GetInclusionProof(r.Context(), proofID)
	if err != nil {
		switch {
		case errors.Is(err, auditlog.ErrProofPending):
			WriteConflict(w, fmt.Sprintf("proof %s is not yet anchored", proofID))
		case errors.Is(err, auditlog.ErrUnknownProof):
			WriteNotFound(w, fmt.Sprintf("proof %s not found", proofID))
		default:
			WriteInternal(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, inclusionResponse{Proof: p, Inclusion: ip, Batch: batch})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	b, err := s.engine.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, fmt.Sprintf("batch %s not found", batchID))
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// verifyRequest is the wire form of a verification request. BatchRoot is the
// root the caller's batch record claims; TrustedRoot is the root obtained out
// of band.
type verifyRequest struct {
	Proof       *proof.Object          `json:"proof"`
	Inclusion   *merkle.InclusionProof `json:"inclusion,omitempty"`
	BatchRoot   string                 `json:"batch_root,omitempty"`
	TrustedRoot string                 `json:"trusted_root,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Proof == nil {
		WriteBadRequest(w, "proof is required")
		return
	}

	report := s.verifier.Verify(verify.Input{
		Proof:       req.Proof,
		Inclusion:   req.Inclusion,
		BatchRoot:   req.BatchRoot,
		TrustedRoot: req.TrustedRoot,
	})
	if s.obs != nil {
		s.obs.RecordVerification(r.Context(), string(report.Status))
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	ctx, finish := s.trackOperation(r.Context(), "api.close_batch")
	b, err := s.log.CloseBatch(ctx)
	finish(err)
	if err != nil {
		if errors.Is(err, auditlog.ErrNothingToClose) {
			WriteConflict(w, "open batch is empty")
			return
		}
		WriteInternal(w, err)
		return
	}
	if s.obs != nil {
		s.obs.RecordBatchAnchored(ctx, len(b.LeafProofIDs))
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	if s.ring == nil {
		WriteError(w, http.StatusServiceUnavailable, "Key Rotation Unavailable", "no persistent key ring configured")
		return
	}
	version, err := s.ring.Rotate()
	if err != nil {
		WriteInternal(w, err)
		return
	}
	s.logger.Info("signing key rotated", "version", version)
	writeJSON(w, http.StatusOK, map[string]any{
		"active_version": keyring.FormatVersion(version),
	})
}

func (s *Server) handleReloadRulesets(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil || s.rulesDir == "" {
		WriteError(w, http.StatusServiceUnavailable, "Ruleset Reload Unavailable", "no ruleset directory configured")
		return
	}
	// LoadDir skips versions that are already registered, so a reload only
	// adds new bundles. A malformed bundle fails the whole reload.
	if err := s.registry.LoadDir(s.rulesDir); err != nil {
		WriteUnprocessable(w, fmt.Sprintf("ruleset load failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"versions": s.registry.Versions(),
	})
}

func (s *Server) trackOperation(ctx context.Context, name string) (context.Context, func(error)) {
	if s.obs == nil {
		return ctx, func(error) {}
	}
	return s.obs.TrackOperation(ctx, name)
}

// decodeBody decodes a JSON request body with a size cap and strict field
// checking. On failure it writes the problem response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("response encoding failed", "err", err)
	}
}

// ListenAndServe runs the server with sane timeouts until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
