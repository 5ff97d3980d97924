// Package transport receives DNS datagrams from the network and hands them to
// the resolution engine. It does not parse messages: bytes in, bytes out.
package transport

import "github.com/haukened/rr-relay/internal/dns/services/resolver"

// maxDatagramSize is the largest query read from a client, per RFC 1035.
const maxDatagramSize = 512

var _ resolver.ServerTransport = (*UDPTransport)(nil)
