package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndCount(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NoError(t, Register(registry))

	before := testutil.ToFloat64(requestsTotal.WithLabelValues("GET"))
	CountRequest("GET")
	CountRequest("GET")
	assert.Equal(t, before+2, testutil.ToFloat64(requestsTotal.WithLabelValues("GET")))

	beforeEvents := testutil.ToFloat64(watchEventsTotal.WithLabelValues("ADDED"))
	CountWatchEvent("ADDED")
	assert.Equal(t, beforeEvents+1, testutil.ToFloat64(watchEventsTotal.WithLabelValues("ADDED")))
}

func TestRegisterTwiceFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NoError(t, Register(registry))
	assert.Error(t, Register(registry))
}
