// Package httputil holds the small HTTP client shared by the registry index
// and the registry web API. It sets the headers crates.io requires, maps
// status codes onto sentinel errors and decodes JSON bodies.
//
// There are no retries and no timeouts: a failed request fails the
// operation that made it.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultUserAgent identifies crateclone to registries. crates.io rejects
// requests without a User-Agent.
const DefaultUserAgent = "crateclone (https://github.com/crateclone/crateclone)"

var (
	// ErrNotFound is returned for 404, 410 and 451 responses.
	ErrNotFound = errors.New("not found")
	// ErrUnexpectedStatus is returned for any other non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Client performs GET requests with a fixed set of headers.
type Client struct {
	http    *http.Client
	headers map[string]string
}

// NewClient returns a Client that sends userAgent (or DefaultUserAgent when
// empty) on every request. A nil hc means http.DefaultClient.
func NewClient(hc *http.Client, userAgent string) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:    hc,
		headers: map[string]string{"User-Agent": userAgent},
	}
}

// GetJSON fetches url and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.Open(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// GetBytes fetches url and returns the whole body.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	body, err := c.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return data, nil
}

// Open fetches url and returns the body of a 200 response. The caller closes
// it.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusNotFound, http.StatusGone, http.StatusUnavailableForLegalReasons:
		return ErrNotFound
	default:
		return fmt.Errorf("%w %d", ErrUnexpectedStatus, code)
	}
}
