package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/config"
)

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "loud", Service: "auth-service"})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zap.InfoLevel))
	require.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestNewLoggerFormats(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger(config.LoggerConfig{Format: "xml"})
	require.Error(t, err)
}

func TestMetricsCountRequestsAndEvents(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/api/v1/auth/signin", "POST", 401, 20*time.Millisecond)
	m.RecordRequest("/api/v1/auth/signin", "POST", 401, 30*time.Millisecond)
	m.RecordError("/api/v1/auth/signin", "POST", "INVALID_CREDENTIALS")
	m.RecordAuthEvent("refresh_reuse_detected")

	require.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/api/v1/auth/signin", "401")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("POST", "/api/v1/auth/signin", "INVALID_CREDENTIALS")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.authEventsTotal.WithLabelValues("refresh_reuse_detected")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordAuthEvent("logged_out")
	})
}
