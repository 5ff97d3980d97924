package wire

import (
	"errors"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

// ErrFormat is wrapped by every Decode failure caused by malformed input.
var ErrFormat = errors.New("malformed DNS message")

// DNSCodec converts between wire format and domain messages.
type DNSCodec interface {
	// Decode parses a complete message. No partial result is returned on error.
	Decode(data []byte) (domain.Message, error)
	// Encode serializes msg. It is the inverse of Decode on valid input.
	Encode(msg domain.Message) ([]byte, error)
	// EncodeQuestion builds a standard recursive query for q.
	EncodeQuestion(id uint16, q domain.Question) ([]byte, error)
}
