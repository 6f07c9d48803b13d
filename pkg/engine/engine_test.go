package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigillum/core/pkg/auditlog"
	"github.com/sigillum/core/pkg/cache"
	"github.com/sigillum/core/pkg/classifier"
	"github.com/sigillum/core/pkg/digest"
	"github.com/sigillum/core/pkg/keyring"
	"github.com/sigillum/core/pkg/proof"
	"github.com/sigillum/core/pkg/ruleset"
	"github.com/sigillum/core/pkg/store"
	"github.com/sigillum/core/pkg/verify"
)

const testBundle = `
version: "1.0.0"
rules:
  - id: forbid-guaranteed-returns
    category: phrase-forbidden
    severity: Critical
    pattern: "guaranteed returns"
    languages: [en-IN]
  - id: require-market-risk-disclosure
    category: disclosure-required
    severity: Warning
    pattern: "subject to market risk, please read scheme documents"
    languages: [en-IN]
`

type testEnv struct {
	engine *Engine
	log    *auditlog.Log
	ring   *keyring.KeyRing
	store  *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	reg := ruleset.NewRegistry()
	_, err := reg.Load([]byte(testBundle), false, dir)
	require.NoError(t, err)

	signer, err := keyring.NewEd25519Signer()
	require.NoError(t, err)
	ring := keyring.New()
	require.NoError(t, ring.Add(1, signer, true))

	st, err := store.OpenSQLite(filepath.Join(dir, "sigillum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log, err := auditlog.New(auditlog.Config{
		MaxBatchSize: 100,
		MaxBatchAge:  time.Hour,
		WALPath:      filepath.Join(dir, "audit.wal"),
	}, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	e := New(Config{
		Classifier: classifier.New(reg),
		Generator:  proof.NewGenerator(ring),
		Log:        log,
		Store:      st,
		Cache:      cache.NewMemoryCache(time.Minute),
		RoleKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	return &testEnv{engine: e, log: log, ring: ring, store: st}
}

func TestProcess_CleanSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d, err := env.engine.Process(ctx, Submission{
		Content:        "Mutual funds are subject to market risk, please read scheme documents",
		Locale:         "en-IN",
		RulesetVersion: "1.0.0",
	})
	require.NoError(t, err)

	assert.Equal(t, classifier.OutcomeClean, d.Outcome)
	assert.Empty(t, d.Findings)
	assert.NotEmpty(t, d.Record.InteractionID)
	assert.Equal(t, d.Proof.ProofID, d.Receipt.ProofID)

	ok, err := digest.Verify(d.Record.ContentDigest,
		[]byte("Mutual funds are subject to market risk, please read scheme documents"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcess_BlockedSubmissionStillGetsProof(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d, err := env.engine.Process(ctx, Submission{
		InteractionID:  "interaction-1",
		Content:        "This fund offers guaranteed returns, subject to market risk, please read scheme documents",
		Locale:         "en-IN",
		RulesetVersion: "1.0.0",
	})
	require.NoError(t, err)

	assert.Equal(t, classifier.OutcomeBlocked, d.Outcome)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, "forbid-guaranteed-returns", d.Findings[0].RuleID)
	assert.Equal(t, classifier.OutcomeBlocked, d.Proof.Outcome)
	assert.Equal(t, "interaction-1", d.Proof.InteractionID)
}

func TestProcess_ParticipantRoleIsHashed(t *testing.T) {
	env := newTestEnv(t)

	d, err := env.engine.Process(context.Background(), Submission{
		Content:         "subject to market risk, please read scheme documents",
		Locale:          "en-IN",
		RulesetVersion:  "1.0.0",
		ParticipantRole: "advisor",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, d.Record.ParticipantRoleHash)
	assert.NotContains(t, d.Record.ParticipantRoleHash, "advisor")
}

func TestProcess_EmptyContent(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Process(context.Background(), Submission{
		Locale: "en-IN", RulesetVersion: "1.0.0",
	})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestProcess_UnknownRulesetIssuesNoProof(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Process(context.Background(), Submission{
		Content:        "hello world",
		Locale:         "en-IN",
		RulesetVersion: "9.9.9",
	})
	assert.ErrorIs(t, err, classifier.ErrRulesetNotFound)
	assert.Equal(t, 0, env.log.Pending())
}

func TestGetProof_PendingAndAnchored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d, err := env.engine.Process(ctx, Submission{
		Content:        "subject to market risk, please read scheme documents",
		Locale:         "en-IN",
		RulesetVersion: "1.0.0",
	})
	require.NoError(t, err)

	got, err := env.engine.GetProof(ctx, d.Proof.ProofID)
	require.NoError(t, err)
	assert.Equal(t, d.Proof.ProofID, got.ProofID)

	_, err = env.log.CloseBatch(ctx)
	require.NoError(t, err)

	got, err = env.engine.GetProof(ctx, d.Proof.ProofID)
	require.NoError(t, err)
	assert.Equal(t, d.Proof.Signature, got.Signature)

	_, err = env.engine.GetProof(ctx, "sha256:missing")
	assert.ErrorIs(t, err, auditlog.ErrUnknownProof)
}

func TestEndToEnd_ProofVerifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d, err := env.engine.Process(ctx, Submission{
		Content:        "guaranteed returns for all",
		Locale:         "en-IN",
		RulesetVersion: "1.0.0",
	})
	require.NoError(t, err)

	batch, err := env.log.CloseBatch(ctx)
	require.NoError(t, err)

	ip, gotBatch, err := env.engine.GetInclusionProof(ctx, d.Proof.ProofID)
	require.NoError(t, err)
	assert.Equal(t, batch.BatchID, gotBatch.BatchID)

	report := verify.New(env.ring).Verify(verify.Input{
		Proof:       d.Proof,
		Inclusion:   ip,
		BatchRoot:   gotBatch.RootHash,
		TrustedRoot: batch.RootHash,
	})
	assert.True(t, report.Verified, report.Summary)
}

func TestGetInclusionProof_CachedPathServedOnSecondRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d, err := env.engine.Process(ctx, Submission{
		Content:        "subject to market risk, please read scheme documents",
		Locale:         "en-IN",
		RulesetVersion: "1.0.0",
	})
	require.NoError(t, err)
	batch, err := env.log.CloseBatch(ctx)
	require.NoError(t, err)

	first, _, err := env.engine.GetInclusionProof(ctx, d.Proof.ProofID)
	require.NoError(t, err)
	second, _, err := env.engine.GetInclusionProof(ctx, d.Proof.ProofID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, second.Verify(batch.RootHash))
}
