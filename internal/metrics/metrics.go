// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturePacketsTotal counts packets read from the capture source
	CapturePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanakai_capture_packets_total",
			Help: "Total number of packets read from the capture source",
		},
		[]string{"source"},
	)

	// PhotonPacketsTotal counts captured packets by classification outcome
	PhotonPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanakai_photon_packets_total",
			Help: "Total number of packets by decode outcome",
		},
		[]string{"result"}, // photon / non_photon / frame_error / decode_error
	)

	// PhotonCommandsTotal counts decoded Photon commands
	PhotonCommandsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tanakai_photon_commands_total",
			Help: "Total number of Photon commands decoded",
		},
	)

	// EventsTotal counts extracted events by type
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanakai_events_total",
			Help: "Total number of events extracted",
		},
		[]string{"event_type"},
	)

	// FragmentSetsPending tracks incomplete fragment sets held by the reassembler
	FragmentSetsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tanakai_fragment_sets_pending",
			Help: "Number of incomplete fragment sets awaiting reassembly",
		},
	)

	// FragmentSetsEvictedTotal counts fragment sets dropped by the idle sweep
	FragmentSetsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tanakai_fragment_sets_evicted_total",
			Help: "Total number of stale fragment sets evicted",
		},
	)

	// QueueDepth tracks events buffered between capture and sink
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tanakai_pipeline_queue_depth",
			Help: "Number of events waiting in the pipeline channel",
		},
	)

	// PipelineState tracks the pipeline state machine
	PipelineState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tanakai_pipeline_state",
			Help: "Pipeline state (0=idle, 1=capturing, 2=draining, 3=stopped)",
		},
	)

	// SinkSendSeconds measures sink delivery latency, retries included
	SinkSendSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tanakai_sink_send_seconds",
			Help:    "Latency of event delivery to the sink in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18), // 100µs to ~13s
		},
		[]string{"result"},
	)

	// SinkErrorsTotal counts failed deliveries
	SinkErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tanakai_sink_errors_total",
			Help: "Total number of events the sink failed to deliver",
		},
	)
)
