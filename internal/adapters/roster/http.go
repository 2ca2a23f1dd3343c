package roster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultListTimeout = 30 * time.Second
	maxListBytes       = 64 << 20
)

// HTTPLister fetches the server list over HTTP.
type HTTPLister struct {
	url    string
	client *http.Client
}

// NewHTTPLister returns a lister for url. A nil client gets a 30s timeout.
func NewHTTPLister(url string, client *http.Client) *HTTPLister {
	if client == nil {
		client = &http.Client{Timeout: defaultListTimeout}
	}
	return &HTTPLister{url: url, client: client}
}

// List downloads and decodes the server list.
func (l *HTTPLister) List(ctx context.Context) (ServerList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, http.NoBody)
	if err != nil {
		return ServerList{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return ServerList{}, fmt.Errorf("GET %s: %w", l.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ServerList{}, fmt.Errorf("GET %s: %s", l.url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListBytes))
	if err != nil {
		return ServerList{}, fmt.Errorf("GET %s: read body: %w", l.url, err)
	}
	return DecodeServerList(body)
}
