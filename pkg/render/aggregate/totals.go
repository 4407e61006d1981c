package aggregate

import (
	"cmp"
	"slices"

	"github.com/matzehuels/relaymap/pkg/relay"
)

// Totals counts located relays by role and resolution.
type Totals struct {
	Relays     int
	Guards     int
	Exits      int
	Middles    int
	Resolved   int
	Unresolved int
}

// Count tallies points. Guard|Exit relays count under both roles.
func Count(points []Located) Totals {
	t := Totals{Relays: len(points)}
	for _, p := range points {
		if p.Role.Has(relay.Guard) {
			t.Guards++
		}
		if p.Role.Has(relay.Exit) {
			t.Exits++
		}
		if p.Role.Has(relay.Middle) {
			t.Middles++
		}
		if p.Point.Resolved {
			t.Resolved++
		} else {
			t.Unresolved++
		}
	}
	return t
}

// CountryCount is the number of relays attributed to one country.
type CountryCount struct {
	Country string
	Count   int
}

// TopCountries returns at most n countries ordered by relay count
// descending, ties broken by country code. Relays without a country are
// not counted. n <= 0 returns all countries.
func TopCountries(points []Located, n int) []CountryCount {
	counts := make(map[string]int)
	for _, p := range points {
		if p.Country != "" {
			counts[p.Country]++
		}
	}
	out := make([]CountryCount, 0, len(counts))
	for c, k := range counts {
		out = append(out, CountryCount{Country: c, Count: k})
	}
	slices.SortFunc(out, func(a, b CountryCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Country, b.Country))
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
