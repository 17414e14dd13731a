package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestCollectorsRegisteredWithDefaultRegistry(t *testing.T) {
	// Touch the vectors so their families materialise.
	FramesDelivered.WithLabelValues("0").Add(3)
	SessionDeaths.WithLabelValues("heartbeat_timeout").Inc()
	Uploads.WithLabelValues("ok").Inc()
	DiskFreeBytes.Set(1 << 30)

	for _, name := range []string{
		"hieasy_media_frames_total",
		"hieasy_session_deaths_total",
		"hieasy_uploads_total",
		"hieasy_recorder_disk_free_bytes",
	} {
		assert.NotNil(t, gather(t, name), "metric family %s", name)
	}
}

func TestFrameCounterLabels(t *testing.T) {
	FramesDelivered.WithLabelValues("7").Add(5)
	mf := gather(t, "hieasy_media_frames_total")
	require.NotNil(t, mf)

	var found bool
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "channel" && l.GetValue() == "7" {
				found = true
				assert.GreaterOrEqual(t, m.GetCounter().GetValue(), 5.0)
			}
		}
	}
	assert.True(t, found, "channel label present")
}
