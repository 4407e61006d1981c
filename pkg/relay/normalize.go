package relay

import (
	"cmp"
	"slices"

	"github.com/charmbracelet/log"
)

// NormalizeStats counts what [Normalize] dropped.
type NormalizeStats struct {
	Input      int
	Malformed  int
	NotRunning int
	Duplicates int
}

// Normalize validates raws into records sorted by fingerprint.
//
// Malformed records are logged at warn level and dropped; one bad record never
// fails the batch. Relays that report running=false are dropped. Duplicate
// fingerprints keep their first occurrence in raws and log a warning.
// A nil logger discards the warnings.
func Normalize(raws []Raw, logger *log.Logger) ([]Record, NormalizeStats) {
	stats := NormalizeStats{Input: len(raws)}
	seen := make(map[string]struct{}, len(raws))
	out := make([]Record, 0, len(raws))

	for i, raw := range raws {
		rec, err := FromRaw(raw)
		if err != nil {
			stats.Malformed++
			if logger != nil {
				logger.Warn("dropping malformed relay", "index", i, "nickname", raw.Nickname, "err", err)
			}
			continue
		}
		if !rec.Running {
			stats.NotRunning++
			continue
		}
		if _, dup := seen[rec.Fingerprint]; dup {
			stats.Duplicates++
			if logger != nil {
				logger.Warn("dropping duplicate relay", "fingerprint", rec.Fingerprint)
			}
			continue
		}
		seen[rec.Fingerprint] = struct{}{}
		out = append(out, rec)
	}

	SortByFingerprint(out)
	return out, stats
}

// SortByFingerprint sorts records by fingerprint, ascending.
func SortByFingerprint(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return cmp.Compare(a.Fingerprint, b.Fingerprint)
	})
}

// Filter returns the records whose role set contains role, preserving order.
func Filter(records []Record, role Role) []Record {
	var out []Record
	for _, r := range records {
		if Classify(r).Has(role) {
			out = append(out, r)
		}
	}
	return out
}
