package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "sigillum", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Should not fail even when disabled
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	attrs := []attribute.KeyValue{attribute.String("test.key", "test.value")}
	newCtx, finish := p.TrackOperation(context.Background(), "test.operation", attrs...)
	require.NotNil(t, newCtx)

	time.Sleep(1 * time.Millisecond)
	finish(nil)
	// With an error too; must not panic.
	_, finish = p.TrackOperation(context.Background(), "test.operation.error")
	finish(errors.New("test error"))
}

func TestRecordMetricsDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	// These should not panic when provider is disabled
	p.RecordProof(ctx, "clean")
	p.RecordBatchAnchored(ctx, 12)
	p.RecordVerification(ctx, "valid")
	p.RecordError(ctx, errors.New("test"), attribute.String("test", "value"))
}

func TestStartSpan(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	newCtx, span := p.StartSpan(context.Background(), "test.span")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestShutdown(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestClassificationOperation(t *testing.T) {
	attrs := ClassificationOperation("en-IN", "1.0.0", "blocked", 2)
	require.Len(t, attrs, 4)
	require.Equal(t, "sigillum.locale", string(attrs[0].Key))
	require.Equal(t, "blocked", attrs[2].Value.AsString())
}

func TestBatchOperation(t *testing.T) {
	attrs := BatchOperation("batch-1", 42)
	require.Len(t, attrs, 2)
	require.Equal(t, "sigillum.batch.id", string(attrs[0].Key))
	require.Equal(t, int64(42), attrs[1].Value.AsInt64())
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()
	require.NotNil(t, SpanFromContext(ctx)) // Returns a no-op span if none
	// Should not panic
	AddSpanEvent(ctx, "test.event", attribute.String("key", "value"))
	SetSpanStatus(ctx, errors.New("test error"))
	SetSpanStatus(ctx, nil)
}
