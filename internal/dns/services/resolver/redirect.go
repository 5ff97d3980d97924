package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

var (
	// ErrRedirectQuestionBuild indicates the synthetic query for the target could not be built.
	ErrRedirectQuestionBuild = errors.New("redirect question build failed")
	// ErrRedirectReplyInvalid indicates the upstream reply to a redirect query could not be decoded.
	ErrRedirectReplyInvalid = errors.New("redirect reply invalid")
)

func (r *Resolver) handleRedirect(ctx context.Context, query domain.Message, entry domain.AuthorityEntry) domain.Resolution {
	qname := query.Question.Name
	ip, err := r.resolveTarget(ctx, entry.Target)
	if err != nil {
		r.logger.Warn(map[string]any{
			"name":     qname,
			"target":   entry.Target,
			"upstream": r.upstream,
			"error":    err,
		}, "Redirect lookup failed, dropping query")
		r.record("Redirect lookup for %s via %s failed, no reply sent.", qname, entry.Target)
		return domain.NoReply(domain.OutcomeRedirectFailed)
	}
	r.record("Successfully redirected %s via %s to %s.", qname, entry.Target, ip)
	return r.answer(domain.OutcomeRedirected, query, ip)
}

// resolveTarget asks the upstream for the A record of target, a single hop,
// and returns the first address in the answer section.
func (r *Resolver) resolveTarget(ctx context.Context, target string) (net.IP, error) {
	q, err := domain.NewQuestion(target, domain.RRTypeA, domain.RRClassIN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRedirectQuestionBuild, err)
	}
	raw, err := r.codec.EncodeQuestion(r.newID(), q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRedirectQuestionBuild, err)
	}

	reply, err := r.forward(ctx, raw)
	if err != nil {
		return nil, err
	}

	msg, err := r.codec.Decode(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRedirectReplyInvalid, err)
	}
	ip, ok := msg.FirstAddress()
	if !ok {
		return nil, fmt.Errorf("%w: %s (rcode %s)", domain.ErrEmptyUpstreamAnswer, target, msg.Header.RCode)
	}
	return ip, nil
}
