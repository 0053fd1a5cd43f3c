package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/oceanic-systems/s2c-middleware/metrics"
)

// gather collects every sample currently registered with the default
// registry, the same registry promauto.NewGaugeVec/NewCounterVec/NewHistogram
// attach to in metrics.go.
func gather(t *testing.T) []*dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	return families
}

func TestMetricsAreRegistered(t *testing.T) {
	metrics.QueueDepth.WithLabelValues("cmd-in").Set(3)
	metrics.ATRoundTrip.Observe(0.2)
	metrics.InstantMessagesTotal.WithLabelValues("delivered").Inc()
	metrics.FileTransferRetries.WithLabelValues("sender").Inc()
	metrics.FileTransfersCompleted.WithLabelValues("sender", "complete").Inc()
	metrics.ClientCommandsTotal.WithLabelValues("GETMEAS", "ok").Inc()

	want := map[string]bool{
		"middleware_queue_depth":                 false,
		"middleware_at_roundtrip_seconds":        false,
		"middleware_instant_messages_total":      false,
		"middleware_file_transfer_retries_total": false,
		"middleware_file_transfers_total":        false,
		"middleware_client_commands_total":       false,
	}
	for _, fam := range gather(t) {
		if _, ok := want[fam.GetName()]; ok {
			want[fam.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s was not found in the default registry", name)
		}
	}
}

func TestMetricNamesFollowNamespaceConvention(t *testing.T) {
	for _, fam := range gather(t) {
		name := fam.GetName()
		if strings.HasPrefix(name, "middleware_") && strings.HasSuffix(name, "_total_total") {
			t.Errorf("metric %s has a doubled _total suffix", name)
		}
	}
}
