package source

import (
	"net/http"

	"github.com/okian/rankindex/pkg/logger"
)

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for HEAD and GET requests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithTagPath overrides where the validation tag is cached.
func WithTagPath(path string) Option {
	return func(f *Fetcher) {
		if path != "" {
			f.tagPath = path
		}
	}
}

// WithLogger sets a custom logger for the fetcher.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}
