package authority

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

// RedirectPrefix marks a value that names another host instead of an address.
const RedirectPrefix = "redirect:"

// keyDelim is the koanf path delimiter. Names contain dots, so a character
// that cannot appear in a DNS name is used to keep each key flat.
const keyDelim = "|"

// parserFor picks a koanf parser from the file extension.
func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported authority file type %q", ext)
	}
}

// Load reads the authority file at path and builds a Table. The file is a
// flat mapping of name to value, where value is an IPv4 literal or
// "redirect:<target>":
//
//	{"a.test": "10.0.0.1", "b.test": "redirect:a.test"}
func Load(path string) (*Table, error) {
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(keyDelim)
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load authority file %s: %w", path, err)
	}

	entries := make([]domain.AuthorityEntry, 0, len(k.Raw()))
	for name, raw := range k.Raw() {
		value, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("authority file %s: value for %q must be a string, got %T", path, name, raw)
		}
		entry, err := ParseEntry(name, value)
		if err != nil {
			return nil, fmt.Errorf("authority file %s: %w", path, err)
		}
		entries = append(entries, entry)
	}

	table, err := NewTable(entries)
	if err != nil {
		return nil, fmt.Errorf("authority file %s: %w", path, err)
	}
	return table, nil
}

// ParseEntry turns one name/value pair into an AuthorityEntry.
func ParseEntry(name, value string) (domain.AuthorityEntry, error) {
	value = strings.TrimSpace(value)
	if target, ok := strings.CutPrefix(value, RedirectPrefix); ok {
		return domain.NewRedirectEntry(name, strings.TrimSpace(target))
	}
	ip := net.ParseIP(value)
	if ip == nil {
		return domain.AuthorityEntry{}, fmt.Errorf("invalid address %q for %s", value, name)
	}
	return domain.NewAddressEntry(name, ip)
}
