package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/config"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/metrics"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/protocol"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/tracking"
)

// AnchorCounter reports the number of live anchors
type AnchorCounter interface {
	Count() int
}

// UDPServer receives anchor event packets from the sensor bridge
type UDPServer struct {
	conn    *net.UDPConn
	config  *config.ServerConfig
	logger  *slog.Logger
	anchors AnchorCounter
	metrics *metrics.Metrics

	// Concurrency management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Decoded events in arrival order
	events chan tracking.Event

	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	mu               sync.RWMutex
}

// NewUDPServer creates a new UDP server instance. anchors and m may be nil.
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, anchors AnchorCounter, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1000
	}

	return &UDPServer{
		config:  cfg,
		logger:  logger,
		anchors: anchors,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan tracking.Event, queueSize),
	}
}

// Events returns the ordered event stream. It is closed after Stop.
func (s *UDPServer) Events() <-chan tracking.Event {
	return s.events
}

// Start begins listening for UDP packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
		slog.Int("queue_capacity", cap(s.events)),
	)

	// One reader keeps packets in arrival order
	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound address once started
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server and closes the event stream. It is safe to call more than once.
func (s *UDPServer) Stop() error {
	s.stopOnce.Do(s.stop)
	return nil
}

func (s *UDPServer) stop() {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	// Close UDP connection to unblock the receive loop
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()
	close(s.events)

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)
}

// receiveLoop reads, decodes and queues packets one at a time
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, max(s.config.BufferSize, protocol.MaxPacketSize))

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			// Check if this is a timeout (expected during graceful shutdown)
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		event, err := s.decode(buffer[:n])
		if err != nil {
			s.mu.Lock()
			s.parseErrors++
			s.mu.Unlock()
			s.metrics.RecordParseError()

			s.logger.Error("Failed to parse packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
				slog.String("error", err.Error()),
			)
			continue
		}

		// Blocks when the queue is full; events are never dropped
		select {
		case s.events <- event:
		case <-s.ctx.Done():
			return
		}

		s.mu.Lock()
		s.packetsProcessed++
		s.mu.Unlock()
		s.metrics.RecordPacketProcessed()
		s.metrics.SetQueueSize(len(s.events))

		s.logger.Debug("Anchor event queued",
			slog.String("kind", event.Kind.String()),
			slog.String("anchor_id", event.Anchor.ID.String()),
			slog.String("name", event.Anchor.Name),
		)
	}
}

func (s *UDPServer) decode(data []byte) (tracking.Event, error) {
	packet, err := protocol.ParsePacket(data)
	if err != nil {
		return tracking.Event{}, err
	}
	return EventFromPacket(packet, time.Now()), nil
}

// EventFromPacket converts a parsed packet into a tracking event
func EventFromPacket(packet *protocol.ParsedPacket, receivedAt time.Time) tracking.Event {
	p := packet.Anchor
	return tracking.Event{
		Kind: tracking.EventKind(packet.Header.Kind),
		Anchor: tracking.Anchor{
			ID:        uuid.UUID(p.AnchorID),
			Name:      p.Name,
			IsTracked: packet.Header.Tracked(),
			Pose:      tracking.Pose(p.Pose),
			Extent:    r3.Vector{X: float64(p.Extent[0]), Y: float64(p.Extent[1]), Z: float64(p.Extent[2])},
		},
		ReceivedAt: receivedAt,
	}
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		QueueSize:        uint64(len(s.events)),
		QueueCapacity:    uint64(cap(s.events)),
	}
	if s.anchors != nil {
		stats.ActiveAnchors = uint64(s.anchors.Count())
	}
	return stats
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	ActiveAnchors    uint64 `json:"active_anchors"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}
