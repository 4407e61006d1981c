// Package httputil provides HTTP plumbing shared by the directory client.
//
// # Retry
//
// Retries are modelled as an explicit state machine so that backoff and
// termination can be tested without a network:
//
//	Fetching ──ok──────────────▶ Done
//	    │
//	    ├──permanent error─────▶ Failed
//	    │
//	    └──transient/429──▶ Retrying ──budget spent──▶ Exhausted
//	                           │
//	                           └──after delay──▶ Fetching
//
// [Policy.Next] is the pure transition function and [Retry] drives it.
// Only errors wrapped with errors.Retryable are retried as transient
// failures. errors.RateLimitedError is waited out for its Retry-After hint
// (or the current backoff) and has its own budget, MaxRateLimitWaits.
//
//	err := httputil.Retry(ctx, httputil.DefaultPolicy, func() error {
//	    return fetchPage(ctx)
//	})
//
// # Compression
//
// [AcceptGzip] and [Body] request and decode gzip responses. The directory
// API serves multi-megabyte JSON documents that compress well.
package httputil
