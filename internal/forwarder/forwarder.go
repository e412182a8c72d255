// Package forwarder implements the HTTP Forwarder (spec.md §4.4):
// translating an inbound request into an outbound one against a chosen
// backend address, and streaming the response back.
package forwarder

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sessiondriver/sessiondriver/internal/types"
)

// Forwarder issues requests to backend WebDriver addresses.
type Forwarder struct {
	Client   *http.Client
	Protocol string // literal prefix, e.g. "http://"
}

// New returns a Forwarder using protocol as the literal upstream scheme
// prefix (spec.md §9: kept as a string, not a scheme enum).
func New(protocol string) *Forwarder {
	return &Forwarder{Client: &http.Client{}, Protocol: protocol}
}

// Forward builds an outbound request against <protocol><address><path>,
// sends it, and copies the backend's status/headers/body onto w.
//
// statusRequest, when true, rewrites the outbound path to literally
// /status regardless of the inbound path (spec.md §4.4), supporting the
// session-scoped status endpoint.
//
// Only GET, POST, and DELETE are forwarded (WebDriver's surface); any
// other method is rejected rather than sent upstream.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, address string, statusRequest bool) error {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return &types.ForwardError{
			Op:      "method",
			Message: fmt.Sprintf("unsupported method %q", r.Method),
			Err:     types.ErrUnsupportedVerb,
		}
	}

	path := r.URL.Path
	if statusRequest {
		path = "/status"
	}
	rawURL := f.Protocol + address + path
	if r.URL.RawQuery != "" {
		rawURL += "?" + r.URL.RawQuery
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return types.NewBadURLError(err)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, rawURL, bytes.NewReader(body))
	if err != nil {
		return types.NewBadURLError(err)
	}

	for key, values := range r.Header {
		if http.CanonicalHeaderKey(key) == "Host" {
			continue
		}
		if !validHeaderName(key) {
			return types.NewBadHeaderError(fmt.Errorf("invalid header name %q", key))
		}
		for _, v := range values {
			if !validHeaderValue(v) {
				return types.NewBadHeaderError(fmt.Errorf("invalid value for header %q", key))
			}
			outReq.Header.Add(key, v)
		}
	}

	resp, err := f.Client.Do(outReq)
	if err != nil {
		return types.NewGatewayError(err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("closing backend response body")
		}
	}()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("error streaming backend response to client")
	}
	return nil
}

// validHeaderName reports whether name contains only RFC 7230 token
// characters.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isTokenChar(name[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// validHeaderValue rejects control characters other than horizontal tab.
func validHeaderValue(value string) bool {
	for i := 0; i < len(value); i++ {
		b := value[i]
		if b == '\t' {
			continue
		}
		if b < 0x20 || b == 0x7f {
			return false
		}
	}
	return true
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
