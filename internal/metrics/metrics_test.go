package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordQueued("text")
	m.RecordSend(10*time.Millisecond, nil, "")
	m.RecordDeadLetter("rejected")
	m.SetQueueDepth(3)
	m.SetOnline(true)
	m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["msgrelay_messages_queued_total"])
	assert.True(t, names["msgrelay_messages_sent_total"])
	assert.True(t, names["msgrelay_dead_letters_total"])
	assert.True(t, names["msgrelay_queue_depth"])
	assert.True(t, names["msgrelay_online"])
	assert.True(t, names["msgrelay_http_requests_total"])
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}

func TestRecordSend_SplitsSuccessAndFailure(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSend(time.Millisecond, nil, "")
	m.RecordSend(time.Millisecond, errors.New("boom"), "TRANSPORT")
	m.RecordSend(time.Millisecond, errors.New("boom"), "TRANSPORT")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SendFailures.WithLabelValues("TRANSPORT")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.SendLatency))
}

func TestGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetQueueDepth(7)
	m.SetStaleMessages(2)
	m.SetOnline(true)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StaleMessages))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Online))

	m.SetOnline(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Online))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordQueued("text")
		m.RecordSend(time.Millisecond, errors.New("x"), "SEND_FAILED")
		m.RecordDeadLetter("retries_exhausted")
		m.RecordPersistFailure()
		m.RecordDrainPass()
		m.SetQueueDepth(1)
		m.SetStaleMessages(1)
		m.SetOnline(true)
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	})
}
