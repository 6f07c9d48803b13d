// Engine-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for the compliance pipeline.
var (
	// Classification attributes
	AttrLocale         = attribute.Key("sigillum.locale")
	AttrRulesetVersion = attribute.Key("sigillum.ruleset.version")
	AttrOutcome        = attribute.Key("sigillum.outcome")
	AttrFindingCount   = attribute.Key("sigillum.findings.count")

	// Proof attributes
	AttrProofID    = attribute.Key("sigillum.proof.id")
	AttrKeyVersion = attribute.Key("sigillum.key.version")

	// Audit log attributes
	AttrBatchID   = attribute.Key("sigillum.batch.id")
	AttrLeafCount = attribute.Key("sigillum.batch.leaves")

	// Verification attributes
	AttrVerifyStatus = attribute.Key("sigillum.verify.status")
)

// ClassificationOperation creates attributes for one classification run.
func ClassificationOperation(locale, rulesetVersion, outcome string, findings int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrLocale.String(locale),
		AttrRulesetVersion.String(rulesetVersion),
		AttrOutcome.String(outcome),
		AttrFindingCount.Int(findings),
	}
}

// ProofOperation creates attributes for proof issuance.
func ProofOperation(proofID, keyVersion, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProofID.String(proofID),
		AttrKeyVersion.String(keyVersion),
		AttrOutcome.String(outcome),
	}
}

// BatchOperation creates attributes for batch anchoring.
func BatchOperation(batchID string, leaves int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBatchID.String(batchID),
		AttrLeafCount.Int(leaves),
	}
}

// VerificationOperation creates attributes for a verification run.
func VerificationOperation(proofID, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProofID.String(proofID),
		AttrVerifyStatus.String(status),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
