// Package relay models relays from the directory and classifies them by role.
//
// A [Raw] value is the JSON object the directory API returns for one relay.
// [FromRaw] validates it into an immutable [Record], and [Classify] derives the
// relay's [Role] set from its flags. [Normalize] applies both to a whole
// fetch: malformed records are dropped with a warning instead of failing the
// batch, and duplicate fingerprints collapse to their first occurrence.
package relay

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/matzehuels/relaymap/pkg/errors"
)

// FingerprintLen is the length of a relay fingerprint in hex characters
// (a SHA-1 digest of the relay's identity key).
const FingerprintLen = 40

// Raw is one relay object as served by the directory's details document.
// Only the fields relaymap requests are declared.
type Raw struct {
	Nickname    string   `json:"nickname"`
	Fingerprint string   `json:"fingerprint"`
	ORAddresses []string `json:"or_addresses"`
	Flags       []string `json:"flags"`
	Running     *bool    `json:"running"`
	Country     string   `json:"country"`
}

// Record is a validated relay. Records are created per fetch and never
// modified afterwards.
type Record struct {
	Fingerprint string     // 40 upper-case hex characters
	Addr        netip.Addr // primary OR address, IPv4 or IPv6
	Port        uint16     // primary OR port
	Flags       []string   // sorted, deduplicated, as served
	Running     bool
	Nickname    string // may be empty
	Country     string // lower-case ISO 3166-1 alpha-2; may be empty
}

// HasFlag reports whether the record carries flag, ignoring case.
func (r Record) HasFlag(flag string) bool {
	return slices.ContainsFunc(r.Flags, func(f string) bool {
		return strings.EqualFold(f, flag)
	})
}

// FromRaw validates raw into a Record. The primary address is the first
// parseable entry of or_addresses; the directory lists the relay's main
// address first. A relay with no running field is taken to be running, since
// the directory query already filters on it.
//
// Errors carry [errors.ErrCodeParse].
func FromRaw(raw Raw) (Record, error) {
	fp, err := NormalizeFingerprint(raw.Fingerprint)
	if err != nil {
		return Record{}, err
	}

	var addr netip.AddrPort
	var addrErr error
	found := false
	for _, s := range raw.ORAddresses {
		if addr, addrErr = ParseAddress(s); addrErr == nil {
			found = true
			break
		}
	}
	if !found {
		if addrErr == nil {
			addrErr = fmt.Errorf("no or_addresses")
		}
		return Record{}, errors.Wrap(errors.ErrCodeParse, addrErr, "relay %s has no usable address", fp)
	}

	running := true
	if raw.Running != nil {
		running = *raw.Running
	}

	return Record{
		Fingerprint: fp,
		Addr:        addr.Addr(),
		Port:        addr.Port(),
		Flags:       normalizeFlags(raw.Flags),
		Running:     running,
		Nickname:    raw.Nickname,
		Country:     strings.ToLower(strings.TrimSpace(raw.Country)),
	}, nil
}

// NormalizeFingerprint upper-cases fp and checks that it is 40 hex characters.
func NormalizeFingerprint(fp string) (string, error) {
	fp = strings.ToUpper(strings.TrimSpace(fp))
	if fp == "" {
		return "", errors.New(errors.ErrCodeParse, "relay has no fingerprint")
	}
	if len(fp) != FingerprintLen {
		return "", errors.New(errors.ErrCodeParse, "fingerprint %q: want %d hex characters, got %d", fp, FingerprintLen, len(fp))
	}
	for _, c := range fp {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return "", errors.New(errors.ErrCodeParse, "fingerprint %q: invalid character %q", fp, c)
		}
	}
	return fp, nil
}

// ParseAddress parses a directory OR address: "1.2.3.4:9001" for IPv4 and
// "[2001:db8::1]:443" for IPv6. IPv4-mapped IPv6 addresses are unmapped;
// zoned addresses are rejected.
func ParseAddress(s string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(strings.TrimSpace(s))
	if err != nil {
		return netip.AddrPort{}, errors.Wrap(errors.ErrCodeParse, err, "or_address %q", s)
	}
	if ap.Addr().Zone() != "" {
		return netip.AddrPort{}, errors.New(errors.ErrCodeParse, "or_address %q: zoned address", s)
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

func normalizeFlags(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
