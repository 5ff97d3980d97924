// Package upstream relays raw DNS queries to an upstream resolver over UDP.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/services/resolver"
)

var _ resolver.Forwarder = (*Forwarder)(nil)

// Error message constants for consistent error handling
const (
	errEmptyQuery      = "empty query"
	errNoDestination   = "no upstream destination"
	errFailedToConnect = "failed to connect to %s: %w"
	errWriteFailed     = "write to %s failed: %w"
	errReadFailed      = "read from %s failed: %w"
	errQueryTimeout    = "no reply from %s within %v: %w"
)

// DefaultTimeout bounds a single forward attempt.
const DefaultTimeout = 5 * time.Second

// maxDatagramSize is the largest reply read from the upstream.
const maxDatagramSize = 512

// DialFunc establishes a network connection. It matches (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Forwarder.
type Options struct {
	Timeout time.Duration
	Logger  log.Logger
	// Dial is injectable for tests; defaults to a net.Dialer.
	Dial DialFunc
}

// Forwarder sends one query per call over a fresh UDP socket and waits for a
// single reply datagram. It holds no per-call state and is safe for
// concurrent use.
type Forwarder struct {
	timeout time.Duration
	logger  log.Logger
	dial    DialFunc
}

// NewForwarder creates a Forwarder, applying DefaultTimeout when opts.Timeout
// is not positive.
func NewForwarder(opts Options) *Forwarder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	return &Forwarder{
		timeout: opts.Timeout,
		logger:  opts.Logger,
		dial:    opts.Dial,
	}
}

// Timeout returns the per-attempt timeout.
func (f *Forwarder) Timeout() time.Duration {
	return f.timeout
}

// ensureContextDeadline bounds ctx by the forwarder timeout. The returned
// cancel function must always be called.
func (f *Forwarder) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline)
}

// Forward writes query to destination and returns the raw reply bytes. The
// reply is not parsed or validated. Failures wrap domain.ErrForwardTimeout or
// domain.ErrForwardTransport.
func (f *Forwarder) Forward(ctx context.Context, query []byte, destination string) ([]byte, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrForwardTransport, errEmptyQuery)
	}
	if destination == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrForwardTransport, errNoDestination)
	}

	ctx, cancel := f.ensureContextDeadline(ctx)
	defer cancel()

	conn, err := f.dial(ctx, "udp", destination)
	if err != nil {
		return nil, f.classify(ctx, destination, fmt.Errorf(errFailedToConnect, destination, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	type result struct {
		reply []byte
		err   error
	}
	resultChan := make(chan result, 1)

	go func() {
		if _, err := conn.Write(query); err != nil {
			resultChan <- result{err: fmt.Errorf(errWriteFailed, destination, err)}
			return
		}
		buffer := make([]byte, maxDatagramSize)
		n, err := conn.Read(buffer)
		if err != nil {
			resultChan <- result{err: fmt.Errorf(errReadFailed, destination, err)}
			return
		}
		resultChan <- result{reply: buffer[:n]}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			return nil, f.classify(ctx, destination, res.err)
		}
		f.logger.Debug(map[string]any{
			"upstream": destination,
			"size":     len(res.reply),
		}, "Received upstream reply")
		return res.reply, nil
	case <-ctx.Done():
		return nil, f.classify(ctx, destination, ctx.Err())
	}
}

// classify maps a raw failure onto the forward error taxonomy.
func (f *Forwarder) classify(ctx context.Context, destination string, err error) error {
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)

	if timedOut {
		err = fmt.Errorf(errQueryTimeout, destination, f.timeout, errors.Join(domain.ErrForwardTimeout, err))
	} else {
		err = errors.Join(domain.ErrForwardTransport, err)
	}
	f.logger.Debug(map[string]any{
		"upstream": destination,
		"error":    err.Error(),
	}, "Upstream forward failed")
	return err
}
