package utils

import (
	"strings"
	"testing"
)

func TestCanonicalDNSName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"relative name gains dot", "a.test", "a.test."},
		{"fqdn unchanged", "a.test.", "a.test."},
		{"uppercase folded", "A.TEST", "a.test."},
		{"mixed case with dot", "QuIt.LoCaL.", "quit.local."},
		{"surrounding whitespace", "  a.test  ", "a.test."},
		{"tabs and newlines", "\t a.test \n", "a.test."},
		{"repeated trailing dots collapse", "a.test...", "a.test."},
		{"single label", "localhost", "localhost."},
		{"root", ".", "."},
		{"root with whitespace", " . ", "."},
		{"empty", "", ""},
		{"whitespace only", " \t ", ""},
		{"punycode label", "xn--nxasmq6b.xn--j6w193g", "xn--nxasmq6b.xn--j6w193g."},
		{"hyphen and digits", "host-01.example-site.com", "host-01.example-site.com."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalDNSName(tt.input)
			if got != tt.expected {
				t.Errorf("CanonicalDNSName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCanonicalDNSName_Idempotent(t *testing.T) {
	for _, input := range []string{"a.test", "A.TEST.", "  www.example.com  ", ".", ""} {
		first := CanonicalDNSName(input)
		second := CanonicalDNSName(first)
		if first != second {
			t.Errorf("CanonicalDNSName not idempotent for %q: %q then %q", input, first, second)
		}
		if first != "" && (!strings.HasSuffix(first, ".") || first != strings.ToLower(first)) {
			t.Errorf("CanonicalDNSName(%q) = %q, want lowercase fqdn", input, first)
		}
	}
}

func TestSameDNSName(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"quit.local.", "QUIT.LOCAL", true},
		{"a.test", "a.test.", true},
		{"a.test", "b.test", false},
		{"a.test", "sub.a.test", false},
		{"", ".", false},
	}
	for _, tt := range tests {
		if got := SameDNSName(tt.a, tt.b); got != tt.want {
			t.Errorf("SameDNSName(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
