package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

func TestNewMetricsIsSingleton(t *testing.T) {
	m1 := NewMetrics()
	m2 := NewMetrics()
	assert.Same(t, m1, m2)

	before := testutil.ToFloat64(m1.SyncTasks.WithLabelValues("succeeded"))
	m1.RecordSyncTask("succeeded", time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(m1.SyncTasks.WithLabelValues("succeeded")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSyncTask("failed", time.Second)
		m.RecordLifecycle("onboard", "ok")
		m.RecordCacheLookup("hit")
	})
}

func TestZapLoggerLevelChange(t *testing.T) {
	l, err := NewZapLogger(&config.LogConfig{Level: "info"})
	require.NoError(t, err)

	zl := l.(*zapLogger)
	assert.False(t, zl.Core().Enabled(-1))
	l.SetLevel("debug")
	assert.True(t, zl.Core().Enabled(-1))

	child := l.WithComponent("sync").WithFields(logger.String("tenant_id", "t1"))
	assert.NotPanics(t, func() {
		child.Info(context.Background(), "hello")
		child.Error(context.Background(), "failed", errors.New("boom"))
	})
}

func TestTraceOperationDisabled(t *testing.T) {
	tm, err := NewTracingManager(&config.TracingConfig{ServiceName: "test"}, logger.NewNoopLogger())
	require.NoError(t, err)

	want := errors.New("boom")
	got := TraceOperation(context.Background(), tm, "op", func(context.Context) error { return want }, map[string]interface{}{"k": 1})
	assert.ErrorIs(t, got, want)
	assert.NoError(t, tm.Shutdown(context.Background()))
}
