// Package internal holds the low-level HTTP plumbing shared by the
// authenticator and session: a single long-lived requestor and small
// stateless helpers. Nothing here knows about OAuth grants or rate limits.
package internal

import (
	"io"
	"net/http"
	"sync"

	pkgerrs "github.com/jamesprial/redditcore/pkg/errors"
)

// Requestor is the injected transport capability the core builds on: it
// executes exactly one HTTP request and returns the response, or wraps any
// low-level I/O failure in a *pkgerrs.RequestException. It owns one
// underlying *http.Client and is safe for concurrent use.
type Requestor struct {
	client *http.Client

	closeOnce sync.Once
}

// NewRequestor wraps httpClient, defaulting to http.DefaultClient when nil.
func NewRequestor(httpClient *http.Client) *Requestor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Requestor{client: httpClient}
}

// Do issues req and returns the response. A non-nil error is always a
// *pkgerrs.RequestException wrapping the original transport error; prawcore
// callers match on the wrapped type (connection reset, read timeout,
// chunked-encoding error) to decide whether a retry is warranted.
func (r *Requestor) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &pkgerrs.RequestException{Original: err}
	}
	return resp, nil
}

// HTTPClient exposes the underlying *http.Client for integrations that need
// to supply their own client through a context.Context (golang.org/x/oauth2's
// clientcredentials.Config, notably), rather than going through Do.
func (r *Requestor) HTTPClient() *http.Client {
	return r.client
}

// Close releases the underlying client's idle connections. It is safe to
// call more than once; only the first call has any effect.
func (r *Requestor) Close() error {
	r.closeOnce.Do(func() {
		r.client.CloseIdleConnections()
	})
	return nil
}

// ReadAndClose drains and closes resp.Body, returning its bytes. Every
// caller that needs the body (status dispatch, token decoding) goes through
// this so the body is never left unclosed on an error path.
func ReadAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pkgerrs.RequestException{Original: err}
	}
	return body, nil
}
