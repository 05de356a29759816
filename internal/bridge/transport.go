package bridge

import (
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every outbound call; the remote protocol itself
// carries no deadline.
const DefaultTimeout = 30 * time.Second

// Transport is the low-level HTTP helper for one federation instance. It is
// owned exclusively by a single bridge and released when the bridge closes.
type Transport struct {
	client   *http.Client
	insecure bool
}

// NewTransport creates the default transport with full certificate
// validation. A timeout of zero falls back to DefaultTimeout.
func NewTransport(timeout time.Duration) *Transport {
	return newTransport(timeout, false)
}

// NewInsecureTransport creates a transport that accepts any certificate
// chain and performs no hostname check. This is an intentional trust
// downgrade; only construct it when the configuration explicitly opts in.
func NewInsecureTransport(timeout time.Duration) *Transport {
	return newTransport(timeout, true)
}

func newTransport(timeout time.Duration, insecure bool) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	inner := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		inner.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Transport{
		client:   &http.Client{Timeout: timeout, Transport: inner},
		insecure: insecure,
	}
}

// Insecure reports whether certificate validation is disabled.
func (t *Transport) Insecure() bool {
	return t.insecure
}

// Do executes a prepared request.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}

// CloseIdleConnections releases the transport's pooled connections.
func (t *Transport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

// drainAndClose discards the remainder of a response body so the underlying
// connection can be reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
