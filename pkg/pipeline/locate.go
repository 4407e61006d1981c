package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/relaymap/pkg/geo"
	"github.com/matzehuels/relaymap/pkg/relay"
	"github.com/matzehuels/relaymap/pkg/render/aggregate"
)

// Locate opens the geolocation database at dbPath and resolves every record.
// The result is index-aligned with records. Errors from opening the database
// carry [errors.ErrCodeGeoDatabase].
func Locate(ctx context.Context, dbPath string, records []relay.Record, workers int) ([]aggregate.Located, error) {
	resolver, err := geo.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer resolver.Close()
	return Resolve(ctx, resolver, records, workers)
}

// Resolve looks up records in parallel, at most workers at a time (GOMAXPROCS
// when workers <= 0). Each worker owns a contiguous slice of the output, so
// the result order matches records regardless of scheduling.
//
// A relay's country comes from the directory when it reported one and from
// the database otherwise.
func Resolve(ctx context.Context, resolver geo.Resolver, records []relay.Record, workers int) ([]aggregate.Located, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]aggregate.Located, len(records))
	if len(records) == 0 {
		return out, nil
	}
	chunk := (len(records) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				rec := records[i]
				pt := resolver.Resolve(rec.Addr)
				country := rec.Country
				if country == "" {
					country = pt.Country
				}
				out[i] = aggregate.Located{
					Role:    relay.Classify(rec),
					Point:   pt,
					Country: country,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
