package domain

import (
	"net"
	"testing"
)

func TestNewAddressRecord(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		ip      net.IP
		wantErr bool
	}{
		{"ipv4", "a.test.", net.ParseIP("10.0.0.1"), false},
		{"ipv4 in 16 byte form", "a.test.", net.IPv4(10, 0, 0, 1), false},
		{"ipv6 rejected", "a.test.", net.ParseIP("::1"), true},
		{"nil ip rejected", "a.test.", nil, true},
		{"empty owner rejected", "", net.ParseIP("10.0.0.1"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, err := NewAddressRecord(tt.owner, tt.ip, LocalTTL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got record %v", rr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(rr.Data) != 4 {
				t.Errorf("expected 4 byte rdata, got %d", len(rr.Data))
			}
			if rr.Type != RRTypeA || rr.Class != RRClassIN || rr.TTL != LocalTTL {
				t.Errorf("unexpected record header: %+v", rr)
			}
		})
	}
}

func TestResourceRecord_Address(t *testing.T) {
	rr := ResourceRecord{Name: "a.test.", Type: RRTypeA, Class: RRClassIN, Data: []byte{10, 0, 0, 1}}
	ip, ok := rr.Address()
	if !ok || !ip.Equal(net.ParseIP("10.0.0.1")) {
		t.Errorf("Address() = %v, %v", ip, ok)
	}

	short := ResourceRecord{Type: RRTypeA, Data: []byte{10, 0}}
	if _, ok := short.Address(); ok {
		t.Error("expected short rdata to yield no address")
	}

	aaaa := ResourceRecord{Type: RRTypeAAAA, Data: make([]byte, 16)}
	if _, ok := aaaa.Address(); ok {
		t.Error("expected AAAA record to yield no address")
	}
}

func TestResourceRecord_String(t *testing.T) {
	txt := ResourceRecord{Name: "t.test.", Type: RRTypeTXT, Class: RRClassIN, TTL: 5, Data: []byte{1, 'x'}}
	if got, want := txt.String(), `t.test. 5 IN TXT \# 2 0178`; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
