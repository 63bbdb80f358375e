// Package fetch provides the bounded HTTP fetch capability consumed by the
// link resolver and the provider decode pipelines. All requests share a
// single client with a hard timeout; callers supply per-request headers.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:132.0) Gecko/20100101 Firefox/132.0"

type (
	// Fetcher is the HTTP capability contract. Implementations return the
	// response body along with the final URL after any redirects, which
	// several decode pipelines need to recover the embed hosts origin.
	Fetcher interface {
		Fetch(ctx context.Context, method string, url string, headers http.Header) (*Result, error)
	}

	Result struct {
		Body       []byte
		FinalURL   string
		StatusCode int
	}

	// NetworkError wraps any transport failure, timeout, or non-success
	// status code. The resolver treats these as a signal to fall back to
	// the next candidate provider.
	NetworkError struct {
		URL   string
		Cause error
	}

	httpFetcher struct {
		client *http.Client
	}
)

func (err *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %s", err.URL, err.Cause.Error())
}

func (err *NetworkError) Unwrap() error { return err.Cause }

// NewFetcher constructs a Fetcher whose requests are bounded by the
// given timeout. Redirects are followed (the sites embed links are
// redirect stubs pointing at the provider hosts).
func NewFetcher(timeout time.Duration) Fetcher {
	return &httpFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

func (fetcher *httpFetcher) Fetch(ctx context.Context, method string, url string, headers http.Header) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Cause: err}
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", DefaultUserAgent)
	}

	resp, err := fetcher.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Cause: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{URL: url, Cause: fmt.Errorf("non-success status code %d", resp.StatusCode)}
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{Body: body, FinalURL: finalURL, StatusCode: resp.StatusCode}, nil
}
