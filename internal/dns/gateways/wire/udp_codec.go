// Package wire provides encoding and decoding of DNS messages for UDP transport.
// It handles the DNS wire format as specified in RFC 1035.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

const (
	headerLen       = 12
	maxLabelLen     = 63
	maxNameLen      = 255
	maxPointerJumps = 64
	maxRecords      = 65535
)

// header flag bits, RFC 1035 §4.1.1
const (
	flagQR = 1 << 15
	flagAA = 1 << 10
	flagTC = 1 << 9
	flagRD = 1 << 8
	flagRA = 1 << 7
)

// udpCodec implements DNSCodec for standard DNS over UDP messages.
type udpCodec struct {
	logger log.Logger
}

// NewUDPCodec creates and returns a new instance of udpCodec using the provided logger.
// A nil logger discards diagnostics.
func NewUDPCodec(logger log.Logger) *udpCodec {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &udpCodec{
		logger: logger,
	}
}

func formatError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// Decode parses a DNS message holding exactly one question followed by its
// answer section. Authority and additional sections are ignored.
func (c *udpCodec) Decode(data []byte) (domain.Message, error) {
	if len(data) < headerLen {
		return domain.Message{}, formatError("message too short: %d bytes", len(data))
	}
	header := decodeHeader(data)
	qdCount := binary.BigEndian.Uint16(data[4:6])
	anCount := binary.BigEndian.Uint16(data[6:8])
	if qdCount != 1 {
		return domain.Message{}, formatError("expected exactly one question, got %d", qdCount)
	}

	name, offset, err := decodeName(data, headerLen)
	if err != nil {
		return domain.Message{}, err
	}
	if offset+4 > len(data) {
		return domain.Message{}, formatError("truncated question")
	}
	question := domain.Question{
		Name:  name,
		Type:  domain.RRType(binary.BigEndian.Uint16(data[offset : offset+2])),
		Class: domain.RRClass(binary.BigEndian.Uint16(data[offset+2 : offset+4])),
	}
	offset += 4

	var answers []domain.ResourceRecord
	for i := 0; i < int(anCount); i++ {
		rr, next, err := parseResourceRecord(data, offset)
		if err != nil {
			return domain.Message{}, fmt.Errorf("answer record %d: %w", i, err)
		}
		answers = append(answers, rr)
		offset = next
	}

	c.logger.Debug(map[string]any{
		"id":       header.ID,
		"question": question.String(),
		"answers":  len(answers),
		"size":     len(data),
	}, "Decoded DNS message")

	return domain.Message{
		Header:   header,
		Question: question,
		Answers:  answers,
	}, nil
}

// Encode serializes msg. Answer owner names equal to the question name are
// written as a compression pointer to the question.
func (c *udpCodec) Encode(msg domain.Message) ([]byte, error) {
	if len(msg.Answers) > maxRecords {
		return nil, fmt.Errorf("too many answer records: %d (max %d)", len(msg.Answers), maxRecords)
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, msg.Header.ID)
	_ = binary.Write(&buf, binary.BigEndian, encodeFlags(msg.Header))
	_ = binary.Write(&buf, binary.BigEndian, uint16(1)) // QDCOUNT
	//gosec:disable G115 -- answer count is bounded by maxRecords above.
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(msg.Answers)))
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // NSCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // ARCOUNT

	qname, err := encodeDomainName(msg.Question.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(qname)
	_ = binary.Write(&buf, binary.BigEndian, uint16(msg.Question.Type))
	_ = binary.Write(&buf, binary.BigEndian, uint16(msg.Question.Class))

	for _, rr := range msg.Answers {
		if canCompress(rr.Name, msg.Question.Name) {
			// pointer to the QNAME, which always starts right after the header
			buf.Write([]byte{0xC0 | byte(headerLen>>8), byte(headerLen & 0xFF)})
		} else {
			name, err := encodeDomainName(rr.Name)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
		}
		if len(rr.Data) > 0xFFFF {
			return nil, fmt.Errorf("resource record data too large: %d bytes", len(rr.Data))
		}
		_ = binary.Write(&buf, binary.BigEndian, uint16(rr.Type))
		_ = binary.Write(&buf, binary.BigEndian, uint16(rr.Class))
		_ = binary.Write(&buf, binary.BigEndian, rr.TTL)
		_ = binary.Write(&buf, binary.BigEndian, uint16(len(rr.Data)))
		buf.Write(rr.Data)
	}

	c.logger.Debug(map[string]any{
		"id":      msg.Header.ID,
		"rcode":   msg.Header.RCode.String(),
		"answers": len(msg.Answers),
		"size":    buf.Len(),
	}, "Encoded DNS message")

	return buf.Bytes(), nil
}

// EncodeQuestion serializes a standard query (opcode 0, RD=1) for q.
func (c *udpCodec) EncodeQuestion(id uint16, q domain.Question) ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return c.Encode(domain.Message{
		Header:   domain.Header{ID: id, RecursionDesired: true},
		Question: q,
	})
}

func decodeHeader(data []byte) domain.Header {
	flags := binary.BigEndian.Uint16(data[2:4])
	return domain.Header{
		ID:                 binary.BigEndian.Uint16(data[0:2]),
		Response:           flags&flagQR != 0,
		Opcode:             uint8((flags >> 11) & 0x0F),
		Authoritative:      flags&flagAA != 0,
		Truncated:          flags&flagTC != 0,
		RecursionDesired:   flags&flagRD != 0,
		RecursionAvailable: flags&flagRA != 0,
		RCode:              domain.RCode(flags & 0x0F),
	}
}

func encodeFlags(h domain.Header) uint16 {
	flags := uint16(h.Opcode&0x0F)<<11 | uint16(h.RCode&0x0F)
	if h.Response {
		flags |= flagQR
	}
	if h.Authoritative {
		flags |= flagAA
	}
	if h.Truncated {
		flags |= flagTC
	}
	if h.RecursionDesired {
		flags |= flagRD
	}
	if h.RecursionAvailable {
		flags |= flagRA
	}
	return flags
}

// canCompress reports whether an answer owner name can point back at the
// question name without changing how it decodes.
func canCompress(owner, qname string) bool {
	o := strings.TrimSuffix(owner, ".")
	return o != "" && o == strings.TrimSuffix(qname, ".")
}

// decodeName decodes a domain name starting at offset, following compression
// pointers as defined in RFC 1035 §4.1.4. It returns the name in FQDN form and
// the offset just past the name in the original byte stream.
func decodeName(data []byte, offset int) (string, int, error) {
	var (
		labels  []string
		wireLen = 1 // terminating zero
		jumps   int
		end     = -1
	)
	for {
		if offset >= len(data) {
			return "", 0, formatError("name runs past end of message")
		}
		length := int(data[offset])
		switch length & 0xC0 {
		case 0x00:
			if length == 0 {
				if end < 0 {
					end = offset + 1
				}
				if len(labels) == 0 {
					return ".", end, nil
				}
				return strings.Join(labels, ".") + ".", end, nil
			}
			offset++
			if offset+length > len(data) {
				return "", 0, formatError("label length out of bounds")
			}
			wireLen += length + 1
			if wireLen > maxNameLen {
				return "", 0, formatError("name exceeds %d octets", maxNameLen)
			}
			label := data[offset : offset+length]
			// a literal dot would decode to the same text as two labels
			if bytes.IndexByte(label, '.') >= 0 {
				return "", 0, formatError("label contains '.'")
			}
			labels = append(labels, string(label))
			offset += length
		case 0xC0:
			if offset+1 >= len(data) {
				return "", 0, formatError("compression pointer out of bounds")
			}
			jumps++
			if jumps > maxPointerJumps {
				return "", 0, formatError("too many compression pointers")
			}
			if end < 0 {
				end = offset + 2
			}
			ptr := int(binary.BigEndian.Uint16(data[offset:offset+2]) & 0x3FFF)
			if ptr >= len(data) {
				return "", 0, formatError("compression pointer target out of bounds")
			}
			offset = ptr
		default:
			return "", 0, formatError("reserved label type 0x%02x", length&0xC0)
		}
	}
}

// encodeDomainName encodes a domain name into DNS wire format without compression.
// A trailing dot is optional; "" and "." encode as the root.
func encodeDomainName(name string) ([]byte, error) {
	var buf bytes.Buffer
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		buf.WriteByte(0)
		return buf.Bytes(), nil
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return nil, fmt.Errorf("empty label in name %q", name)
		}
		if len(label) > maxLabelLen {
			return nil, fmt.Errorf("label too long: %s", label)
		}
		buf.WriteByte(byte(len(label)))
		buf.WriteString(label)
	}
	buf.WriteByte(0)
	if buf.Len() > maxNameLen {
		return nil, fmt.Errorf("name too long: %d octets", buf.Len())
	}
	return buf.Bytes(), nil
}

// parseResourceRecord extracts a single resource record starting at offset.
func parseResourceRecord(data []byte, offset int) (domain.ResourceRecord, int, error) {
	name, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	if offset+10 > len(data) {
		return domain.ResourceRecord{}, 0, formatError("truncated record header")
	}

	typ := domain.RRType(binary.BigEndian.Uint16(data[offset : offset+2]))
	class := domain.RRClass(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
	ttl := binary.BigEndian.Uint32(data[offset+4 : offset+8])
	rdLen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
	offset += 10

	if offset+rdLen > len(data) {
		return domain.ResourceRecord{}, 0, formatError("truncated rdata")
	}
	if typ == domain.RRTypeA && rdLen != 4 {
		return domain.ResourceRecord{}, 0, formatError("A record with %d byte rdata", rdLen)
	}
	rdata := make([]byte, rdLen)
	copy(rdata, data[offset:offset+rdLen])

	return domain.ResourceRecord{
		Name:  name,
		Type:  typ,
		Class: class,
		TTL:   ttl,
		Data:  rdata,
	}, offset + rdLen, nil
}

var _ DNSCodec = (*udpCodec)(nil)
