// Package output writes the relay listings and commits run outputs
// atomically.
//
// Each listing is a headerless CSV file with one "fingerprint,ip,port" row
// per relay, sorted by fingerprint. The content depends only on the set of
// records passed in, so an unchanged relay set produces byte-identical files
// and an external commit-if-changed step sees no diff.
//
// Files are written through a [Batch]: every file is staged next to its
// destination and renamed into place only after all of them were written,
// so a failing run never leaves a truncated listing behind.
package output

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/matzehuels/relaymap/pkg/relay"
)

// Listing is one CSV output: which relays it contains and where it goes.
type Listing struct {
	Name  string
	File  string
	Match func(relay.Role) bool
}

// The three listings written on every run.
var (
	ListingAll    = Listing{Name: "all", File: "all.csv", Match: func(relay.Role) bool { return true }}
	ListingGuards = Listing{Name: "guards", File: "guards.csv", Match: func(r relay.Role) bool { return r.Has(relay.Guard) }}
	ListingExits  = Listing{Name: "exits", File: "exits.csv", Match: func(r relay.Role) bool { return r.Has(relay.Exit) }}
)

// Listings returns the listings in the order they are written, all.csv
// last.
func Listings() []Listing {
	return []Listing{ListingGuards, ListingExits, ListingAll}
}

// Select returns the records whose role matches l.
func (l Listing) Select(records []relay.Record) []relay.Record {
	var out []relay.Record
	for _, rec := range records {
		if l.Match(relay.Classify(rec)) {
			out = append(out, rec)
		}
	}
	return out
}

// Emit writes records as "fingerprint,ip,port" rows with no header and "\n"
// line endings. Rows are sorted by fingerprint and a fingerprint that
// appears more than once is written once, so the output does not depend on
// input order.
func Emit(w io.Writer, records []relay.Record) error {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b relay.Record) int {
		return cmp.Compare(a.Fingerprint, b.Fingerprint)
	})
	sorted = slices.CompactFunc(sorted, func(a, b relay.Record) bool {
		return a.Fingerprint == b.Fingerprint
	})

	cw := csv.NewWriter(w)
	row := make([]string, 3)
	for _, rec := range sorted {
		row[0] = rec.Fingerprint
		row[1] = rec.Addr.String()
		row[2] = strconv.Itoa(int(rec.Port))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", rec.Fingerprint, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
