package domain

import (
	"fmt"
	"net"
)

// LocalTTL is the TTL, in seconds, of every answer the relay synthesizes.
const LocalTTL uint32 = 60

// Header carries the message ID and the flag bits of RFC 1035 §4.1.1.
// The reserved Z bits are not modelled.
type Header struct {
	ID                 uint16
	Response           bool // QR
	Opcode             uint8
	Authoritative      bool // AA
	Truncated          bool // TC
	RecursionDesired   bool // RD
	RecursionAvailable bool // RA
	RCode              RCode
}

// Message is a DNS message with exactly one question and an answer section.
// Authority and additional sections are not carried.
type Message struct {
	Header   Header
	Question Question
	Answers  []ResourceRecord
}

// replyHeader returns the header shared by every reply synthesized for query:
// same ID, opcode and RD, with QR and RA set.
func replyHeader(query Message) Header {
	return Header{
		ID:                 query.Header.ID,
		Response:           true,
		Opcode:             query.Header.Opcode,
		RecursionDesired:   query.Header.RecursionDesired,
		RecursionAvailable: true,
		RCode:              NOERROR,
	}
}

// NewAddressReply builds the authoritative answer to query carrying a single
// A record for the question name with LocalTTL.
func NewAddressReply(query Message, ip net.IP) (Message, error) {
	rr, err := NewAddressRecord(query.Question.Name, ip, LocalTTL)
	if err != nil {
		return Message{}, fmt.Errorf("build answer for %s: %w", query.Question.Name, err)
	}
	h := replyHeader(query)
	h.Authoritative = true
	return Message{
		Header:   h,
		Question: query.Question,
		Answers:  []ResourceRecord{rr},
	}, nil
}

// NewNegativeReply builds a non-authoritative NXDOMAIN reply to query with no
// answers.
func NewNegativeReply(query Message) Message {
	h := replyHeader(query)
	h.RCode = NXDOMAIN
	return Message{
		Header:   h,
		Question: query.Question,
	}
}

// FirstAddress returns the address of the first A record in the answer
// section. Records of other types (e.g. a leading CNAME) are skipped.
func (m Message) FirstAddress() (net.IP, bool) {
	for _, rr := range m.Answers {
		if ip, ok := rr.Address(); ok {
			return ip, true
		}
	}
	return nil, false
}
