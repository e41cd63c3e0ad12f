package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
)

func TestInitTracerDisabled(t *testing.T) {
	tracer, closer, err := InitTracer(config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, opentracing.NoopTracer{}, tracer)
	assert.NoError(t, closer.Close())
}

func TestSpanHelpers(t *testing.T) {
	tracer := mocktracer.New()
	previous := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() { opentracing.SetGlobalTracer(previous) })

	span, ctx := StartSpan(context.Background(), "account.login")
	assert.NotNil(t, opentracing.SpanFromContext(ctx))

	SetTag(span, "account.id", "acc-1")
	FinishSpan(span, errors.New("boom"))

	finished := tracer.FinishedSpans()
	require.Len(t, finished, 1)
	assert.Equal(t, "account.login", finished[0].OperationName)
	assert.Equal(t, "acc-1", finished[0].Tag("account.id"))
	assert.Equal(t, true, finished[0].Tag("error"))
}

func TestNilSpanHelpers(t *testing.T) {
	// must not panic
	SetTag(nil, "k", "v")
	LogError(nil, errors.New("x"))
	FinishSpan(nil, nil)
}
