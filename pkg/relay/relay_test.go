package relay

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/relaymap/pkg/errors"
)

func fp(c byte) string { return strings.Repeat(string(c), FingerprintLen) }

func boolPtr(b bool) *bool { return &b }

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantAddr string
		wantPort uint16
		wantErr  bool
	}{
		{"ipv4", "1.2.3.4:9001", "1.2.3.4", 9001, false},
		{"ipv6", "[2001:db8::1]:443", "2001:db8::1", 443, false},
		{"ipv4 mapped", "[::ffff:1.2.3.4]:9001", "1.2.3.4", 9001, false},
		{"whitespace", " 5.6.7.8:80 ", "5.6.7.8", 80, false},
		{"no port", "1.2.3.4", "", 0, true},
		{"bare ipv6", "2001:db8::1:443", "", 0, true},
		{"port out of range", "1.2.3.4:70000", "", 0, true},
		{"hostname", "relay.example:9001", "", 0, true},
		{"zone", "[fe80::1%eth0]:9001", "", 0, true},
		{"empty", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errors.ErrCodeParse) {
					t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.ErrCodeParse)
				}
				return
			}
			if got.Addr().String() != tt.wantAddr || got.Port() != tt.wantPort {
				t.Errorf("ParseAddress(%q) = %v, want %s:%d", tt.input, got, tt.wantAddr, tt.wantPort)
			}
		})
	}
}

func TestNormalizeFingerprint(t *testing.T) {
	got, err := NormalizeFingerprint(strings.ToLower(fp('a')))
	if err != nil || got != fp('A') {
		t.Errorf("NormalizeFingerprint() = %q, %v", got, err)
	}

	for _, bad := range []string{"", "ABC", fp('G'), fp('A') + "0"} {
		if _, err := NormalizeFingerprint(bad); err == nil {
			t.Errorf("NormalizeFingerprint(%q) should fail", bad)
		}
	}
}

func TestFromRaw(t *testing.T) {
	raw := Raw{
		Nickname:    "moria1",
		Fingerprint: fp('a'),
		ORAddresses: []string{"garbage", "1.2.3.4:9001", "[2001:db8::1]:9001"},
		Flags:       []string{"Running", "Guard", "Guard", " "},
		Country:     "DE",
	}
	rec, err := FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw() error: %v", err)
	}
	if rec.Fingerprint != fp('A') {
		t.Errorf("Fingerprint = %q", rec.Fingerprint)
	}
	if rec.Addr != netip.MustParseAddr("1.2.3.4") || rec.Port != 9001 {
		t.Errorf("address = %v:%d, want first parseable address", rec.Addr, rec.Port)
	}
	if len(rec.Flags) != 2 || rec.Flags[0] != "Guard" || rec.Flags[1] != "Running" {
		t.Errorf("Flags = %v, want [Guard Running]", rec.Flags)
	}
	if !rec.Running {
		t.Error("missing running field should default to running")
	}
	if rec.Country != "de" {
		t.Errorf("Country = %q, want de", rec.Country)
	}
}

func TestFromRawErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
	}{
		{"no fingerprint", Raw{ORAddresses: []string{"1.2.3.4:9001"}}},
		{"no addresses", Raw{Fingerprint: fp('A')}},
		{"only bad addresses", Raw{Fingerprint: fp('A'), ORAddresses: []string{"nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRaw(tt.raw)
			if !errors.Is(err, errors.ErrCodeParse) {
				t.Errorf("FromRaw() error = %v, want PARSE_ERROR", err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		flags []string
		want  Role
	}{
		{[]string{"Guard", "Running"}, Guard},
		{[]string{"Exit", "Running"}, Exit},
		{[]string{"Guard", "Exit", "Running"}, Guard | Exit},
		{[]string{"Running", "Fast", "Stable"}, Middle},
		{nil, Middle},
		{[]string{"guard", "EXIT"}, Guard | Exit},
	}
	for _, tt := range tests {
		got := Classify(Record{Flags: tt.flags})
		if got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.flags, got, tt.want)
		}
		if got.Has(Middle) && (got.Has(Guard) || got.Has(Exit)) {
			t.Errorf("Classify(%v) mixes Middle with Guard/Exit", tt.flags)
		}
	}
}

func TestRoleDominant(t *testing.T) {
	tests := []struct {
		role Role
		want Role
	}{
		{Guard | Exit, Exit},
		{Guard | Middle, Guard},
		{Exit | Middle, Exit},
		{Middle, Middle},
		{Guard, Guard},
	}
	for _, tt := range tests {
		if got := tt.role.Dominant(); got != tt.want {
			t.Errorf("%v.Dominant() = %v, want %v", tt.role, got, tt.want)
		}
	}
	if !(Exit.Precedence() > Guard.Precedence() && Guard.Precedence() > Middle.Precedence()) {
		t.Error("precedence must be Exit > Guard > Middle")
	}
}

func TestRoleString(t *testing.T) {
	if got := (Guard | Exit).String(); got != "guard+exit" {
		t.Errorf("String() = %q", got)
	}
	if got := Role(0).String(); got != "none" {
		t.Errorf("String() = %q", got)
	}
}

func TestNormalize(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)

	raws := []Raw{
		{Fingerprint: fp('C'), ORAddresses: []string{"3.3.3.3:443"}, Flags: []string{"Exit"}},
		{Fingerprint: fp('A'), ORAddresses: []string{"1.1.1.1:443"}},
		{Fingerprint: "", ORAddresses: []string{"9.9.9.9:443"}},
		{Fingerprint: fp('c'), ORAddresses: []string{"4.4.4.4:443"}},
		{Fingerprint: fp('B'), ORAddresses: []string{"2.2.2.2:443"}, Running: boolPtr(false)},
	}

	got, stats := Normalize(raws, logger)

	if len(got) != 2 {
		t.Fatalf("Normalize() returned %d records, want 2", len(got))
	}
	if got[0].Fingerprint != fp('A') || got[1].Fingerprint != fp('C') {
		t.Errorf("records not sorted by fingerprint: %s, %s", got[0].Fingerprint, got[1].Fingerprint)
	}
	if got[1].Addr.String() != "3.3.3.3" {
		t.Errorf("duplicate should keep first occurrence, got %v", got[1].Addr)
	}
	want := NormalizeStats{Input: 5, Malformed: 1, NotRunning: 1, Duplicates: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if !strings.Contains(buf.String(), "dropping malformed relay") {
		t.Error("malformed record should be logged")
	}
	if !strings.Contains(buf.String(), "dropping duplicate relay") {
		t.Error("duplicate record should be logged")
	}
}

func TestNormalizeNilLogger(t *testing.T) {
	got, _ := Normalize([]Raw{{Fingerprint: "bad"}}, nil)
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}

func TestFilter(t *testing.T) {
	records := []Record{
		{Fingerprint: fp('A'), Flags: []string{"Guard"}},
		{Fingerprint: fp('B'), Flags: []string{"Guard", "Exit"}},
		{Fingerprint: fp('C')},
	}
	if got := Filter(records, Guard); len(got) != 2 {
		t.Errorf("Filter(Guard) = %d records, want 2", len(got))
	}
	if got := Filter(records, Exit); len(got) != 1 || got[0].Fingerprint != fp('B') {
		t.Errorf("Filter(Exit) = %v", got)
	}
	if got := Filter(records, Middle); len(got) != 1 || got[0].Fingerprint != fp('C') {
		t.Errorf("Filter(Middle) = %v", got)
	}
}
