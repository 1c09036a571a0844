// Package httpsource reads the race dataset from a URL.
package httpsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Source GETs URL on every Open.
type Source struct {
	URL    string
	Client *http.Client
}

// New returns a Source with a client bounded by timeout (10s when zero).
func New(url string, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Source{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Open issues the request and returns the body of a 2xx response.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, StatusError{URL: s.URL, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// Describe returns the URL.
func (s *Source) Describe() string { return s.URL }
