package stats

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/metrics"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /metrics to be set")
	assert.Equal(t, "GET /metrics", pattern, "expected handler to be registered for GET method on /metrics")
}

func TestGauge(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric("NumActiveClients")

	su.Incr("NumActiveClients")
	su.Incr("NumActiveClients")
	su.Decr("NumActiveClients")

	assert.Equal(t, float64(1), testutil.ToFloat64(su.gauges["NumActiveClients"]),
		"expected gauge to reflect increments and decrements")
}

func TestCounter(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterCounter("MessagesSent")

	su.Incr("MessagesSent")
	su.Incr("MessagesSent")

	assert.Equal(t, float64(2), testutil.ToFloat64(su.counters["MessagesSent"]),
		"expected counter to count increments")
}

func TestIncr_UnknownMetricPanics(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	assert.Panics(t, func() { su.Incr("Nope") }, "expected unknown metric to panic")
}

func Test_toSnake(t *testing.T) {
	tcases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "camel case",
			input:    "NumActiveClients",
			expected: "num_active_clients",
		},
		{
			name:     "single word",
			input:    "Messages",
			expected: "messages",
		},
		{
			name:     "already lower",
			input:    "uptime",
			expected: "uptime",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, toSnake(tc.input), "expected snake case conversion")
		})
	}
}
