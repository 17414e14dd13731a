// Package metrics provides the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label cardinality stays bounded: channels and reasons only, never
// session or file identifiers.

var (
	// FramesDelivered counts media frames handed to consumers, by channel.
	FramesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hieasy_media_frames_total",
		Help: "Total media frames delivered to consumers, by channel.",
	}, []string{"channel"})

	// BytesDelivered counts extracted H.264 bytes handed to consumers.
	BytesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hieasy_media_bytes_total",
		Help: "Total extracted H.264 bytes delivered to consumers, by channel.",
	}, []string{"channel"})

	// SessionDeaths counts command-channel losses by reason.
	SessionDeaths = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hieasy_session_deaths_total",
		Help: "Total sessions marked dead, by reason.",
	}, []string{"reason"})

	// HeartbeatsAnswered counts device heartbeats acknowledged.
	HeartbeatsAnswered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hieasy_session_heartbeats_total",
		Help: "Total device heartbeat notices answered.",
	})

	// ConnectRetries counts feeder reconnect attempts after a failure.
	ConnectRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hieasy_connect_retries_total",
		Help: "Total connect retries performed by the feeder loop.",
	})

	// RecorderSegments tracks the segment count per channel directory.
	RecorderSegments = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hieasy_recorder_segments",
		Help: "Number of completed segment files observed, by channel.",
	}, []string{"channel"})

	// RecorderPipelineExits counts pipeline terminations by cause.
	RecorderPipelineExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hieasy_recorder_pipeline_exits_total",
		Help: "Total recording pipeline terminations, by cause.",
	}, []string{"cause"})

	// EmergencyDeletes counts recordings removed under disk pressure.
	EmergencyDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hieasy_recorder_emergency_deletes_total",
		Help: "Total segment files deleted by emergency disk cleanup.",
	})

	// DiskFreeBytes reports free space in the recording directory.
	DiskFreeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hieasy_recorder_disk_free_bytes",
		Help: "Free bytes on the filesystem holding the recording directory.",
	})

	// Uploads counts upload attempts by result (ok, failed, skipped).
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hieasy_uploads_total",
		Help: "Total segment upload attempts, by result.",
	}, []string{"result"})
)
