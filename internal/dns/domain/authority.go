package domain

import (
	"fmt"
	"net"

	"github.com/haukened/rr-relay/internal/dns/common/utils"
)

// EntryKind tags which variant of AuthorityEntry is active.
type EntryKind uint8

const (
	EntryAddress EntryKind = iota + 1
	EntryRedirect
)

func (k EntryKind) String() string {
	switch k {
	case EntryAddress:
		return "address"
	case EntryRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// AuthorityEntry is a locally known name. Exactly one of Address (Kind ==
// EntryAddress) or Target (Kind == EntryRedirect) is set.
type AuthorityEntry struct {
	Name    string
	Kind    EntryKind
	Address net.IP
	Target  string
}

// NewAddressEntry returns an entry answering name with ip.
func NewAddressEntry(name string, ip net.IP) (AuthorityEntry, error) {
	fqdn := utils.CanonicalDNSName(name)
	if fqdn == "" {
		return AuthorityEntry{}, fmt.Errorf("authority name must not be empty")
	}
	v4 := ip.To4()
	if v4 == nil {
		return AuthorityEntry{}, fmt.Errorf("authority %s: not an IPv4 address: %v", fqdn, ip)
	}
	return AuthorityEntry{Name: fqdn, Kind: EntryAddress, Address: v4}, nil
}

// NewRedirectEntry returns an entry resolving name through target.
func NewRedirectEntry(name, target string) (AuthorityEntry, error) {
	fqdn := utils.CanonicalDNSName(name)
	if fqdn == "" {
		return AuthorityEntry{}, fmt.Errorf("authority name must not be empty")
	}
	tgt := utils.CanonicalDNSName(target)
	if tgt == "" {
		return AuthorityEntry{}, fmt.Errorf("authority %s: redirect target must not be empty", fqdn)
	}
	if tgt == fqdn {
		return AuthorityEntry{}, fmt.Errorf("authority %s: redirects to itself", fqdn)
	}
	return AuthorityEntry{Name: fqdn, Kind: EntryRedirect, Target: tgt}, nil
}

// IsRedirect reports whether the entry points at another name.
func (e AuthorityEntry) IsRedirect() bool {
	return e.Kind == EntryRedirect
}

func (e AuthorityEntry) String() string {
	if e.IsRedirect() {
		return fmt.Sprintf("%s -> redirect:%s", e.Name, e.Target)
	}
	return fmt.Sprintf("%s -> %s", e.Name, e.Address)
}
