package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/services/resolver"
)

// UDPTransport implements resolver.ServerTransport for DNS over UDP. Every
// datagram is handled on its own goroutine.
type UDPTransport struct {
	addr   string
	conn   *net.UDPConn
	logger log.Logger

	// Synchronization for graceful shutdown
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	inflight sync.WaitGroup
}

// NewUDPTransport creates a new UDP transport instance.
func NewUDPTransport(addr string, logger log.Logger) *UDPTransport {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &UDPTransport{
		addr:   addr,
		logger: logger,
	}
}

// Start binds the UDP socket and starts the receive loop. It returns once the
// socket is bound; cancelling ctx has the same effect as calling Stop.
func (t *UDPTransport) Start(ctx context.Context, handler resolver.PacketHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true
	t.stopCh = make(chan struct{})

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   conn.LocalAddr().String(),
	}, "DNS transport started")

	t.inflight.Add(1)
	go t.listenLoop(ctx, conn, handler)

	go func(stopCh chan struct{}) {
		select {
		case <-ctx.Done():
			t.logger.Debug(nil, "UDP transport stopping due to context cancellation")
			_ = t.Stop()
		case <-stopCh:
		}
	}(t.stopCh)

	return nil
}

// Stop closes the socket and waits for every in-flight datagram handler to
// return. Calling Stop again only waits for that drain to complete.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		t.inflight.Wait()
		return nil
	}
	t.running = false
	close(t.stopCh)

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr.Error(),
			}, "Error closing UDP connection")
		}
	}
	t.mu.Unlock()

	t.inflight.Wait()

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return closeErr
}

// Address returns the bound address while running, or the configured one.
func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.running && t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

// listenLoop reads datagrams until the socket is closed.
func (t *UDPTransport) listenLoop(ctx context.Context, conn *net.UDPConn, handler resolver.PacketHandler) {
	defer t.inflight.Done()
	buffer := make([]byte, maxDatagramSize)

	for {
		n, clientAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !t.isRunning() {
				t.logger.Debug(nil, "UDP transport receive loop exiting")
				return
			}
			t.logger.Warn(map[string]any{
				"error": err.Error(),
			}, "Failed to read UDP packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buffer[:n])
		t.inflight.Add(1)
		go t.handlePacket(ctx, conn, packet, clientAddr, handler)
	}
}

func (t *UDPTransport) isRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// handlePacket runs the handler for a single datagram and writes the reply, if any.
func (t *UDPTransport) handlePacket(ctx context.Context, conn *net.UDPConn, data []byte, clientAddr *net.UDPAddr, handler resolver.PacketHandler) {
	defer t.inflight.Done()

	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(data),
		"raw":    fmt.Sprintf("%x", data),
	}, "Received raw DNS query data")

	res := handler.HandlePacket(ctx, data, clientAddr)
	if !res.HasReply() {
		t.logger.Debug(map[string]any{
			"client":  clientAddr.String(),
			"outcome": res.Outcome.String(),
		}, "No reply sent")
		return
	}

	if _, err := conn.WriteToUDP(res.Reply, clientAddr); err != nil {
		t.logger.Error(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Failed to send DNS response")
		return
	}

	t.logger.Debug(map[string]any{
		"client":  clientAddr.String(),
		"outcome": res.Outcome.String(),
		"size":    len(res.Reply),
	}, "Sent DNS response")
}
