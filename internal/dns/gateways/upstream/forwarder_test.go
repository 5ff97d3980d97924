package upstream

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

// MockConn implements net.Conn for testing
type MockConn struct {
	mock.Mock
	readData  []byte
	writeData []byte
}

func (m *MockConn) Read(b []byte) (n int, err error) {
	args := m.Called(b)
	if m.readData != nil {
		copy(b, m.readData)
		return len(m.readData), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockConn) Write(b []byte) (n int, err error) {
	args := m.Called(b)
	m.writeData = make([]byte, len(b))
	copy(m.writeData, b)
	return args.Int(0), args.Error(1)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) LocalAddr() net.Addr                { return nil }
func (m *MockConn) RemoteAddr() net.Addr               { return nil }
func (m *MockConn) SetDeadline(t time.Time) error      { return nil }
func (m *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

func packQuery(t *testing.T, name string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeA)
	data, err := m.Pack()
	require.NoError(t, err)
	return data
}

// startFakeUpstream runs a miekg/dns server on a loopback UDP socket.
func startFakeUpstream(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

// startBlackhole returns an address that accepts datagrams and never replies.
func startBlackhole(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc.LocalAddr().String()
}

func TestNewForwarder_Defaults(t *testing.T) {
	f := NewForwarder(Options{})
	assert.Equal(t, DefaultTimeout, f.Timeout())
	assert.NotNil(t, f.dial)
	assert.NotNil(t, f.logger)

	f = NewForwarder(Options{Timeout: time.Second, Logger: log.NewNoopLogger()})
	assert.Equal(t, time.Second, f.Timeout())
}

func TestForwarder_ensureContextDeadline(t *testing.T) {
	f := NewForwarder(Options{Timeout: 2 * time.Second})

	t.Run("context without deadline", func(t *testing.T) {
		ctx, cancel := f.ensureContextDeadline(context.Background())
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, 100*time.Millisecond)
	})

	t.Run("earlier parent deadline wins", func(t *testing.T) {
		parent, cancelParent := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancelParent()
		want, _ := parent.Deadline()

		ctx, cancel := f.ensureContextDeadline(parent)
		defer cancel()
		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("later parent deadline is tightened", func(t *testing.T) {
		parent, cancelParent := context.WithTimeout(context.Background(), time.Hour)
		defer cancelParent()

		ctx, cancel := f.ensureContextDeadline(parent)
		defer cancel()
		got, _ := ctx.Deadline()
		assert.WithinDuration(t, time.Now().Add(2*time.Second), got, 100*time.Millisecond)
	})
}

func TestForwarder_Forward_PassesBytesVerbatim(t *testing.T) {
	var canned []byte
	addr := startFakeUpstream(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 33},
			A:   net.ParseIP("198.51.100.7"),
		})
		m.Extra = append(m.Extra, &dns.TXT{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 33},
			Txt: []string{"kept as-is"},
		})
		data, err := m.Pack()
		if err != nil {
			return
		}
		canned = data
		_, _ = w.Write(data)
	})

	f := NewForwarder(Options{Timeout: 2 * time.Second})
	reply, err := f.Forward(context.Background(), packQuery(t, "c.test."), addr)
	require.NoError(t, err)
	assert.Equal(t, canned, reply)
}

func TestForwarder_Forward_Timeout(t *testing.T) {
	addr := startBlackhole(t)
	f := NewForwarder(Options{Timeout: 100 * time.Millisecond})

	start := time.Now()
	reply, err := f.Forward(context.Background(), packQuery(t, "slow.test."), addr)

	require.Error(t, err)
	assert.Nil(t, reply)
	assert.ErrorIs(t, err, domain.ErrForwardTimeout)
	assert.NotErrorIs(t, err, domain.ErrForwardTransport)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestForwarder_Forward_ContextDeadline(t *testing.T) {
	addr := startBlackhole(t)
	f := NewForwarder(Options{Timeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Forward(ctx, packQuery(t, "slow.test."), addr)
	assert.ErrorIs(t, err, domain.ErrForwardTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestForwarder_Forward_ContextCancelled(t *testing.T) {
	addr := startBlackhole(t)
	f := NewForwarder(Options{Timeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := f.Forward(ctx, packQuery(t, "slow.test."), addr)
	assert.ErrorIs(t, err, domain.ErrForwardTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForwarder_Forward_TransportErrors(t *testing.T) {
	query := []byte("query")
	reply := []byte("reply")

	tests := []struct {
		name      string
		setup     func(conn *MockConn)
		dialErr   error
		wantErr   string
		wantReply []byte
	}{
		{
			name: "success",
			setup: func(conn *MockConn) {
				conn.On("Write", query).Return(len(query), nil)
				conn.On("Read", mock.AnythingOfType("[]uint8")).Return(len(reply), nil)
				conn.On("Close").Return(nil)
				conn.readData = reply
			},
			wantReply: reply,
		},
		{
			name:    "dial error",
			setup:   func(conn *MockConn) {},
			dialErr: errors.New("network unreachable"),
			wantErr: "failed to connect",
		},
		{
			name: "write error",
			setup: func(conn *MockConn) {
				conn.On("Write", query).Return(0, errors.New("broken pipe"))
				conn.On("Close").Return(nil)
			},
			wantErr: "write to",
		},
		{
			name: "read error",
			setup: func(conn *MockConn) {
				conn.On("Write", query).Return(len(query), nil)
				conn.On("Read", mock.AnythingOfType("[]uint8")).Return(0, errors.New("connection refused"))
				conn.On("Close").Return(nil)
			},
			wantErr: "read from",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			tt.setup(conn)

			var dialed string
			f := NewForwarder(Options{
				Timeout: time.Second,
				Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
					dialed = network + "://" + address
					if tt.dialErr != nil {
						return nil, tt.dialErr
					}
					return conn, nil
				},
			})

			got, err := f.Forward(context.Background(), query, "192.0.2.53:53")
			assert.Equal(t, "udp://192.0.2.53:53", dialed)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrForwardTransport)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantReply, got)
				assert.Equal(t, query, conn.writeData)
			}
			// the socket is released on every path that opened one
			conn.AssertExpectations(t)
		})
	}
}

func TestForwarder_Forward_InvalidInput(t *testing.T) {
	f := NewForwarder(Options{})

	_, err := f.Forward(context.Background(), nil, "127.0.0.1:53")
	assert.ErrorIs(t, err, domain.ErrForwardTransport)

	_, err = f.Forward(context.Background(), []byte{1}, "")
	assert.ErrorIs(t, err, domain.ErrForwardTransport)

	_, err = f.Forward(context.Background(), []byte{1}, "not-an-address")
	assert.ErrorIs(t, err, domain.ErrForwardTransport)
}

func TestForwarder_Forward_Concurrent(t *testing.T) {
	addr := startFakeUpstream(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		_ = w.WriteMsg(m)
	})
	f := NewForwarder(Options{Timeout: 2 * time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			query := packQuery(t, "c.test.")
			reply, err := f.Forward(context.Background(), query, addr)
			if !assert.NoError(t, err) {
				return
			}
			var m dns.Msg
			if assert.NoError(t, m.Unpack(reply)) {
				// each reply lands on the socket that sent the matching query
				assert.Equal(t, query[0:2], reply[0:2])
			}
		}()
	}
	wg.Wait()
}
