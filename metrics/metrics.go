// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: requests, files, tests, api calls.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the current length of each named bounded queue
	// (command-in, AT-tx/rx, file-rx, interrupt, ...).
	//
	// Provides metric:
	//   middleware_queue_depth{queue="..."}
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "middleware_queue_depth",
			Help: "current number of buffered messages in a named queue.",
		},
		[]string{"queue"})

	// ATRoundTrip tracks the latency between issuing an AT command and
	// receiving its single correlated reply.
	ATRoundTrip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "middleware_at_roundtrip_seconds",
			Help:    "AT command/response round-trip latency distribution (seconds).",
			Buckets: prometheus.DefBuckets,
		})

	// InstantMessagesTotal counts instant messages sent, labeled by
	// delivery outcome ("delivered", "failed").
	//
	// Example usage:
	//   metrics.InstantMessagesTotal.WithLabelValues("delivered").Inc()
	InstantMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "middleware_instant_messages_total",
			Help: "Instant messages sent, labeled by delivery outcome.",
		}, []string{"outcome"})

	// FileTransferRetries counts sender/receiver retry events, labeled by
	// role ("sender", "receiver").
	FileTransferRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "middleware_file_transfer_retries_total",
			Help: "File-transfer frame or ack retransmissions, labeled by role.",
		}, []string{"role"})

	// FileTransfersCompleted counts finished file transfers, labeled by
	// role and outcome ("ok", "rejected", "timeout", "bad_md5",
	// "file_error").
	FileTransfersCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "middleware_file_transfers_total",
			Help: "Finished file transfers, labeled by role and outcome.",
		}, []string{"role", "outcome"})

	// ClientCommandsTotal counts response lines the Dispatcher sends to the
	// client. The "verb" label holds the uppercased response type (e.g.
	// "GETMEAS OK", "CMD ERROR"); outcome is "failed" for CMD ERROR and any
	// type ending in FAILED, "ok" otherwise.
	ClientCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "middleware_client_commands_total",
			Help: "Client commands processed by the dispatcher, labeled by verb and outcome.",
		}, []string{"verb", "outcome"})
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in middleware.metrics are registered.")
}
