// Package onionoo retrieves the running relay set from an Onionoo directory
// API.
//
// The client requests the details document restricted to running relays and
// to the fields relaymap uses, pages through it with offset and limit, and
// concatenates the pages in order. Every request goes through the retry state
// machine in [httputil]: rate-limit responses wait for Retry-After, server
// errors and network failures back off exponentially, and anything else
// fails the fetch immediately.
//
// # Conditional requests
//
// With a [cache.Cache] configured, each page body is stored together with its
// Last-Modified header. The next run sends If-Modified-Since and decodes the
// stored body when the directory answers 304 Not Modified, so an unchanged
// consensus costs one round trip per page and no transfer.
//
// # Errors
//
// Fetch failures carry [errors.ErrCodeFetch]. Individual malformed relays are
// not fetch failures; [Client.FetchRunningRelays] drops them through
// [relay.Normalize].
package onionoo
