package domain

import (
	"fmt"
	"net"
)

// ResourceRecord is an answer section entry. Data holds the raw RDATA; for A
// records it is always the 4 byte IPv4 address.
type ResourceRecord struct {
	Name  string
	Type  RRType
	Class RRClass
	TTL   uint32
	Data  []byte
}

// NewAddressRecord builds an IN A record for name pointing at ip.
func NewAddressRecord(name string, ip net.IP, ttl uint32) (ResourceRecord, error) {
	if name == "" {
		return ResourceRecord{}, fmt.Errorf("record name must not be empty")
	}
	v4 := ip.To4()
	if v4 == nil {
		return ResourceRecord{}, fmt.Errorf("not an IPv4 address: %v", ip)
	}
	data := make([]byte, net.IPv4len)
	copy(data, v4)
	return ResourceRecord{
		Name:  name,
		Type:  RRTypeA,
		Class: RRClassIN,
		TTL:   ttl,
		Data:  data,
	}, nil
}

// Address returns the IPv4 address of an A record.
func (rr ResourceRecord) Address() (net.IP, bool) {
	if rr.Type != RRTypeA || len(rr.Data) != net.IPv4len {
		return nil, false
	}
	return net.IPv4(rr.Data[0], rr.Data[1], rr.Data[2], rr.Data[3]).To4(), true
}

// String renders the record in presentation format, e.g. "a.test. 60 IN A 10.0.0.1".
func (rr ResourceRecord) String() string {
	if ip, ok := rr.Address(); ok {
		return fmt.Sprintf("%s %d %s %s %s", rr.Name, rr.TTL, rr.Class, rr.Type, ip)
	}
	return fmt.Sprintf("%s %d %s %s \\# %d %x", rr.Name, rr.TTL, rr.Class, rr.Type, len(rr.Data), rr.Data)
}
