package onionoo

import "github.com/matzehuels/relaymap/pkg/relay"

// Details is one page of the details document.
type Details struct {
	Version         string      `json:"version"`
	RelaysPublished string      `json:"relays_published"`
	Relays          []relay.Raw `json:"relays"`
	RelaysSkipped   *int        `json:"relays_skipped,omitempty"`
	RelaysTruncated *int        `json:"relays_truncated,omitempty"`
}

// cachedPage is the envelope stored in the response cache.
type cachedPage struct {
	LastModified string `json:"last_modified"`
	Body         []byte `json:"body"`
}
