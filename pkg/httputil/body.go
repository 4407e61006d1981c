package httputil

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// AcceptGzip advertises gzip support on req. Setting the header explicitly
// disables net/http's transparent decompression, so responses must be read
// through [Body].
func AcceptGzip(req *http.Request) {
	req.Header.Set("Accept-Encoding", "gzip")
}

// Body returns a reader over the decoded response body. Gzip-encoded
// responses are decompressed; other encodings are returned unchanged.
// Closing the returned reader closes the response body.
func Body(resp *http.Response) (io.ReadCloser, error) {
	if !strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "gzip") {
		return resp.Body, nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return &gzipBody{Reader: zr, body: resp.Body}, nil
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipBody) Close() error {
	zerr := g.Reader.Close()
	if err := g.body.Close(); err != nil {
		return err
	}
	return zerr
}
