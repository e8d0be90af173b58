package server

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/config"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/metrics"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/protocol"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/tracking"
)

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAnchorPayload(id uuid.UUID, name string) *protocol.AnchorPayload {
	return &protocol.AnchorPayload{
		AnchorID: id,
		Pose: [16]float32{
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0.5, 1, -2, 1,
		},
		Extent: [3]float32{0.25, 0.5, 1},
		Name:   name,
	}
}

func startTestUDPServer(t *testing.T, queueSize int, m *metrics.Metrics) (*UDPServer, *net.UDPConn) {
	t.Helper()

	cfg := &config.ServerConfig{
		UDPPort:     0,
		BindAddress: "127.0.0.1",
		BufferSize:  65536,
		QueueSize:   queueSize,
	}
	s := NewUDPServer(cfg, testLogger(), fixedCounter(2), m)
	require.NoError(t, s.Start())

	conn, err := net.DialUDP("udp", nil, s.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return s, conn
}

func sendEvent(t *testing.T, conn *net.UDPConn, kind, flags uint8, payload *protocol.AnchorPayload) {
	t.Helper()

	data, err := protocol.EncodePacket(kind, flags, payload)
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func receiveEvent(t *testing.T, s *UDPServer) tracking.Event {
	t.Helper()

	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return tracking.Event{}
	}
}

func TestEventFromPacket(t *testing.T) {
	id := uuid.New()
	data, err := protocol.EncodePacket(protocol.KindUpdated, protocol.FlagTracked, testAnchorPayload(id, "Chair"))
	require.NoError(t, err)

	packet, err := protocol.ParsePacket(data)
	require.NoError(t, err)

	now := time.Now()
	ev := EventFromPacket(packet, now)

	assert.Equal(t, tracking.EventUpdated, ev.Kind)
	assert.Equal(t, id, ev.Anchor.ID)
	assert.Equal(t, "Chair", ev.Anchor.Name)
	assert.True(t, ev.Anchor.IsTracked)
	assert.Equal(t, r3.Vector{X: 0.25, Y: 0.5, Z: 1}, ev.Anchor.Extent)
	assert.Equal(t, r3.Vector{X: 0.5, Y: 1, Z: -2}, ev.Anchor.Pose.Translation())
	assert.Equal(t, now, ev.ReceivedAt)
}

func TestUDPServerDeliversEventsInOrder(t *testing.T) {
	s, conn := startTestUDPServer(t, 16, nil)
	defer s.Stop()

	id := uuid.New()
	sendEvent(t, conn, protocol.KindAdded, protocol.FlagTracked, testAnchorPayload(id, "House"))
	sendEvent(t, conn, protocol.KindUpdated, 0, testAnchorPayload(id, "House"))
	sendEvent(t, conn, protocol.KindRemoved, 0, testAnchorPayload(id, "House"))

	kinds := []tracking.EventKind{
		receiveEvent(t, s).Kind,
		receiveEvent(t, s).Kind,
		receiveEvent(t, s).Kind,
	}
	assert.Equal(t, []tracking.EventKind{tracking.EventAdded, tracking.EventUpdated, tracking.EventRemoved}, kinds)

	assert.Eventually(t, func() bool {
		return s.GetStatistics().PacketsProcessed == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUDPServerCountsParseErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	s, conn := startTestUDPServer(t, 16, m)
	defer s.Stop()

	_, err := conn.Write([]byte{0xFF, 0x00, 0x01})
	require.NoError(t, err)

	// A valid packet after the garbage still arrives
	id := uuid.New()
	sendEvent(t, conn, protocol.KindAdded, 0, testAnchorPayload(id, ""))
	ev := receiveEvent(t, s)
	assert.Equal(t, id, ev.Anchor.ID)
	assert.False(t, ev.Anchor.IsTracked)

	assert.Eventually(t, func() bool {
		stats := s.GetStatistics()
		return stats.ParseErrors == 1 && stats.PacketsProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := s.GetStatistics()
	assert.Equal(t, uint64(2), stats.PacketsReceived)
	assert.Equal(t, uint64(1), stats.PacketsProcessed)
	assert.Equal(t, uint64(2), stats.ActiveAnchors)
	assert.Equal(t, uint64(16), stats.QueueCapacity)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ParseErrors))
}

func TestUDPServerStopClosesEvents(t *testing.T) {
	s, _ := startTestUDPServer(t, 4, nil)
	require.NoError(t, s.Stop())

	select {
	case _, ok := <-s.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed")
	}
}

func TestUDPServerStopIsIdempotent(t *testing.T) {
	s, _ := startTestUDPServer(t, 4, nil)

	require.NoError(t, s.Stop())
	assert.NotPanics(t, func() {
		require.NoError(t, s.Stop())
	})

	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestUDPServerStopUnblocksFullQueue(t *testing.T) {
	s, conn := startTestUDPServer(t, 1, nil)

	id := uuid.New()
	sendEvent(t, conn, protocol.KindAdded, 0, testAnchorPayload(id, "Cup"))
	sendEvent(t, conn, protocol.KindUpdated, 0, testAnchorPayload(id, "Cup"))

	assert.Eventually(t, func() bool {
		return s.GetStatistics().PacketsReceived == 2
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked on a full queue")
	}
}
