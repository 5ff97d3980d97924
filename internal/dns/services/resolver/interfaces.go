package resolver

import (
	"context"
	"net"
	"time"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

// MessageCodec converts between wire bytes and domain messages.
type MessageCodec interface {
	Decode(data []byte) (domain.Message, error)
	Encode(msg domain.Message) ([]byte, error)
	EncodeQuestion(id uint16, q domain.Question) ([]byte, error)
}

// AuthorityTable answers whether a name is locally known.
type AuthorityTable interface {
	Lookup(name string) (domain.AuthorityEntry, bool)
}

// Forwarder relays raw query bytes to destination and returns the raw reply.
type Forwarder interface {
	Forward(ctx context.Context, query []byte, destination string) ([]byte, error)
}

// AuditLog receives one human-readable line per handled query.
type AuditLog interface {
	Record(line string)
}

// MetricsRecorder observes resolution outcomes and upstream latency.
type MetricsRecorder interface {
	ObserveResolution(outcome domain.Outcome)
	ObserveForward(d time.Duration, err error)
}

// PacketHandler turns one inbound datagram into a Resolution. The transport
// sends Resolution.Reply back to the client when it is non-nil.
type PacketHandler interface {
	HandlePacket(ctx context.Context, data []byte, client net.Addr) domain.Resolution
}

// ServerTransport defines the interface for DNS server transport implementations.
type ServerTransport interface {
	// Start binds the listener and begins delivering datagrams to handler.
	Start(ctx context.Context, handler PacketHandler) error

	// Stop closes the listener and waits for in-flight handlers to finish.
	Stop() error

	// Address returns the network address the transport is bound to.
	Address() string
}

type noopMetrics struct{}

func (noopMetrics) ObserveResolution(domain.Outcome)     {}
func (noopMetrics) ObserveForward(time.Duration, error) {}
