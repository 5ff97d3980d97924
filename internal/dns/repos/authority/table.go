// Package authority holds the static table of locally known names and the
// loader that builds it from a JSON, YAML or TOML file.
package authority

import (
	"fmt"
	"sort"

	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/services/resolver"
)

var _ resolver.AuthorityTable = (*Table)(nil)

// Table is an in-memory, read-only implementation of resolver.AuthorityTable.
// It is never mutated after NewTable returns and is safe for concurrent lookups.
type Table struct {
	entries map[string]domain.AuthorityEntry
	//      canonical name → entry
}

// NewTable builds a Table from entries. Two entries whose names normalize to
// the same canonical form are rejected.
func NewTable(entries []domain.AuthorityEntry) (*Table, error) {
	t := &Table{entries: make(map[string]domain.AuthorityEntry, len(entries))}
	for _, e := range entries {
		key := utils.CanonicalDNSName(e.Name)
		if key == "" {
			return nil, fmt.Errorf("authority entry with empty name")
		}
		if _, exists := t.entries[key]; exists {
			return nil, fmt.Errorf("duplicate authority entry for %s", key)
		}
		e.Name = key
		t.entries[key] = e
	}
	return t, nil
}

// Lookup returns the entry for name. Matching is exact after case and
// trailing-dot normalization; there is no wildcard or suffix matching.
func (t *Table) Lookup(name string) (domain.AuthorityEntry, bool) {
	key := utils.CanonicalDNSName(name)
	e, ok := t.entries[key]
	return e, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Names returns the canonical names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
