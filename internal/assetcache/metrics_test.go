package assetcache

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordTiersAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	body := pngBytes(t, 2, 2)
	source := SourceFunc(func(_ context.Context, key string) ([]byte, error) {
		if key == "/missing.jpg" {
			return nil, errors.New("404")
		}
		return body, nil
	})
	resolver, err := NewResolver(Options[*Image]{
		Name:      "images",
		Store:     newCountingStore(t),
		Namespace: "Images",
		Source:    source,
		Decode:    DecodeImage,
		Metrics:   metrics,
	})
	require.NoError(t, err)
	defer resolver.Close()

	ctx := context.Background()
	_, err = resolver.Await(ctx, "/poster1.jpg")
	require.NoError(t, err)
	_, err = resolver.Await(ctx, "/poster1.jpg")
	require.NoError(t, err)
	_, err = resolver.Await(ctx, "/missing.jpg")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutions.WithLabelValues("images", string(TierNetwork))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutions.WithLabelValues("images", string(TierMemory))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("images", "network")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheWrites.WithLabelValues("images", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.inflight.WithLabelValues("images")))
}

func TestNewMetricsToleratesDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.NoError(t, err)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeResolution("images", "memory")
		m.observeFailure("images", "network")
		m.observeCacheWrite("images", true)
		m.setInflight("images", 3)
		m.observeFetch("images", TierDisk, 0.1)
	})
}
