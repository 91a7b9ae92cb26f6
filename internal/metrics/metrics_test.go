package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveCopy(false)
	m.ObserveCopy(true)
	m.ObserveCopy(true)
	m.ObserveDelete(false)
	m.FileHashed()
	m.HashCacheHit()
	m.HashCacheHit()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.copiesTotal.WithLabelValues(KindFile)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.copiesTotal.WithLabelValues(KindDir)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deletesTotal.WithLabelValues(KindFile)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesHashedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.hashCacheHits))
}

func TestMetrics_ObserveSync(t *testing.T) {
	m := New()

	m.ObserveSync(time.Second, true, nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastSuccessfulRun))

	m.ObserveSync(time.Second, false, errors.New("failed"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastSuccessfulRun))

	m.ObserveSync(time.Second, false, nil)
	assert.Greater(t, testutil.ToFloat64(m.lastSuccessfulRun), 0.0)
	assert.Equal(t, 3, testutil.CollectAndCount(m.syncDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCopy(true)
		m.ObserveDelete(true)
		m.FileHashed()
		m.HashCacheHit()
		m.ObserveSync(time.Second, false, nil)
	})
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ObserveCopy(false)
	path := filepath.Join(t.TempDir(), "contentsync.prom")

	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `contentsync_copies_total{kind="file"} 1`)
}
