// Package resolver decides, for every inbound datagram, whether the relay
// answers locally, follows a redirect through the upstream, forwards the
// query, or shuts down.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

// SentinelName is the query name that makes the relay shut down.
const SentinelName = "quit.local."

type Resolver struct {
	audit     AuditLog
	authority AuthorityTable
	clock     clock.Clock
	codec     MessageCodec
	forwarder Forwarder
	logger    log.Logger
	metrics   MetricsRecorder
	newID     func() uint16
	upstream  string

	shutdown     func()
	shutdownOnce sync.Once
}

type ResolverOptions struct {
	Audit     AuditLog
	Authority AuthorityTable
	Clock     clock.Clock
	Codec     MessageCodec
	Forwarder Forwarder
	Logger    log.Logger
	Metrics   MetricsRecorder
	// Shutdown is called once, the first time the sentinel name is queried.
	Shutdown func()
	// Upstream is the host:port every forward is sent to.
	Upstream string
	// IDGenerator supplies message IDs for redirect queries. Defaults to random.
	IDGenerator func() uint16
}

func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{
		audit:     opts.Audit,
		authority: opts.Authority,
		clock:     opts.Clock,
		codec:     opts.Codec,
		forwarder: opts.Forwarder,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		newID:     opts.IDGenerator,
		shutdown:  opts.Shutdown,
		upstream:  opts.Upstream,
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.logger == nil {
		r.logger = log.NewNoopLogger()
	}
	if r.metrics == nil {
		r.metrics = noopMetrics{}
	}
	if r.newID == nil {
		r.newID = func() uint16 { return uint16(rand.Uint32()) } //gosec:disable G115 -- truncation intended
	}
	if r.shutdown == nil {
		r.shutdown = func() {}
	}
	return r
}

// HandlePacket resolves one raw datagram received from client. It never
// returns an error: every failure maps to an Outcome, and a Resolution
// without Reply means the client gets nothing back.
func (r *Resolver) HandlePacket(ctx context.Context, data []byte, client net.Addr) domain.Resolution {
	res := r.handle(ctx, data, client)
	r.metrics.ObserveResolution(res.Outcome)
	return res
}

func (r *Resolver) handle(ctx context.Context, data []byte, client net.Addr) domain.Resolution {
	query, err := r.codec.Decode(data)
	if err != nil {
		r.logger.Warn(map[string]any{
			"client": addrString(client),
			"size":   len(data),
			"error":  err,
		}, "Dropping malformed DNS query")
		return domain.NoReply(domain.OutcomeMalformed)
	}

	qname := query.Question.Name
	r.logger.Debug(map[string]any{
		"client":   addrString(client),
		"query_id": query.Header.ID,
		"name":     qname,
		"type":     query.Question.Type.String(),
	}, "Received DNS query")

	if utils.SameDNSName(query.Question.Name, SentinelName) {
		return r.handleSentinel(client)
	}

	if entry, ok := r.authority.Lookup(query.Question.CanonicalName()); ok {
		if entry.IsRedirect() {
			return r.handleRedirect(ctx, query, entry)
		}
		return r.handleLocal(query, entry)
	}
	return r.handleForward(ctx, data, query)
}

func (r *Resolver) handleSentinel(client net.Addr) domain.Resolution {
	r.record("Received %s from %s, shutting down and flushing logs.", SentinelName, addrString(client))
	r.shutdownOnce.Do(func() {
		r.logger.Info(map[string]any{"client": addrString(client)}, "Shutdown requested by sentinel query")
		r.shutdown()
	})
	return domain.NoReply(domain.OutcomeShutdown)
}

func (r *Resolver) handleLocal(query domain.Message, entry domain.AuthorityEntry) domain.Resolution {
	r.record("Local lookup successful for %s, sent reply.", query.Question.Name)
	return r.answer(domain.OutcomeLocal, query, entry.Address)
}

func (r *Resolver) handleForward(ctx context.Context, data []byte, query domain.Message) domain.Resolution {
	qname := query.Question.Name
	reply, err := r.forward(ctx, data)
	if err != nil {
		r.logger.Warn(map[string]any{
			"name":     qname,
			"upstream": r.upstream,
			"error":    err,
		}, "Upstream forward failed, answering NXDOMAIN")
		r.record("Forwarded lookup for %s to %s failed, sent NXDOMAIN.", qname, r.upstream)
		return r.encode(domain.OutcomeForwardFailed, domain.NewNegativeReply(query))
	}
	r.record("Domain %s not in local zone, forwarded query to %s.", qname, r.upstream)
	return domain.Resolution{Outcome: domain.OutcomeForwarded, Reply: reply}
}

// answer encodes an authoritative A reply to query carrying ip.
func (r *Resolver) answer(outcome domain.Outcome, query domain.Message, ip net.IP) domain.Resolution {
	msg, err := domain.NewAddressReply(query, ip)
	if err != nil {
		r.logger.Error(map[string]any{
			"name":  query.Question.Name,
			"error": err,
		}, "Failed to build DNS reply")
		return domain.NoReply(outcome)
	}
	return r.encode(outcome, msg)
}

func (r *Resolver) encode(outcome domain.Outcome, msg domain.Message) domain.Resolution {
	data, err := r.codec.Encode(msg)
	if err != nil {
		r.logger.Error(map[string]any{
			"query_id": msg.Header.ID,
			"name":     msg.Question.Name,
			"error":    err,
		}, "Failed to encode DNS reply")
		return domain.NoReply(outcome)
	}
	return domain.Resolution{Outcome: outcome, Reply: data}
}

// forward sends raw to the upstream and records its latency.
// forward sends raw to the upstream. Errors that are not already a forward
// failure kind are reported as transport errors.
func (r *Resolver) forward(ctx context.Context, raw []byte) ([]byte, error) {
	start := r.clock.Now()
	reply, err := r.forwarder.Forward(ctx, raw, r.upstream)
	if err != nil && !domain.IsForwardFailure(err) {
		err = errors.Join(domain.ErrForwardTransport, err)
	}
	r.metrics.ObserveForward(clock.Since(r.clock, start), err)
	return reply, err
}

func (r *Resolver) record(format string, args ...any) {
	if r.audit == nil {
		return
	}
	r.audit.Record(fmt.Sprintf(format, args...))
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
