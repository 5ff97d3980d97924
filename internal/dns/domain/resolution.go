package domain

// Outcome classifies how the relay handled one inbound datagram.
type Outcome uint8

const (
	OutcomeMalformed Outcome = iota
	OutcomeShutdown
	OutcomeLocal
	OutcomeRedirected
	OutcomeRedirectFailed
	OutcomeForwarded
	OutcomeForwardFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMalformed:
		return "malformed"
	case OutcomeShutdown:
		return "shutdown"
	case OutcomeLocal:
		return "local"
	case OutcomeRedirected:
		return "redirected"
	case OutcomeRedirectFailed:
		return "redirect_failed"
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeForwardFailed:
		return "forward_failed"
	default:
		return "unknown"
	}
}

// Resolution is the result of handling one datagram. A nil Reply means
// nothing is sent back and the requester will time out.
type Resolution struct {
	Outcome Outcome
	Reply   []byte
}

// NoReply returns a Resolution that sends nothing.
func NoReply(o Outcome) Resolution {
	return Resolution{Outcome: o}
}

// HasReply reports whether there are bytes to transmit.
func (r Resolution) HasReply() bool {
	return r.Reply != nil
}
