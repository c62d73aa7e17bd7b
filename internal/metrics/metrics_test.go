package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMetricsConstructsAllVectors(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m.OperationsTotal)
	require.NotNil(t, m.OperationDuration)
	require.NotNil(t, m.EngineSpawnsTotal)
	require.NotNil(t, m.KeyCacheSize)
	require.NotNil(t, m.EngineSpawnErrors)
	require.NotNil(t, m.StatusLinesTotal)
	require.NotNil(t, m.KeyCacheHits)
	require.NotNil(t, m.PendingOperations)

	m.OperationsTotal.WithLabelValues("decrypt", "openpgp", "ok").Inc()
	m.KeyCacheSize.Set(3)
	m.KeyCacheHits.WithLabelValues("hit").Inc()
}
