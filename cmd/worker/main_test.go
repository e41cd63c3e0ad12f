package main

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/events"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/metrics"
)

func TestAuditHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, logging.Config{Level: "info", Format: "json"})
	metrics.EventsConsumedTotal.Reset()

	event := events.NewAccountEvent(events.AccountPasswordChanged, "acc-1", "alice")
	require.NoError(t, auditHandler(logger)(event))

	out := buf.String()
	assert.Contains(t, out, `"event_type":"password_changed"`)
	assert.Contains(t, out, `"event_id":"`+event.ID+`"`)
	assert.Contains(t, out, `"username":"alice"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsConsumedTotal.WithLabelValues("password_changed", "success")))
}
