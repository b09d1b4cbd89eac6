package tools

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPTransport is the production Transport: a plain net/http client with a
// bounded per-attempt timeout. No example repo in the retrieved pack reaches
// for a third-party HTTP client library for outbound calls, so this stays on
// the standard library.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport constructs a Transport with a 30s per-attempt timeout.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	return Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
