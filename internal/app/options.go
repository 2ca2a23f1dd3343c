package service

import (
	"github.com/okian/rankindex/internal/domain/prefix"
	"github.com/okian/rankindex/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFetcher sets the upstream fetcher. Without one, only skip-download runs
// are possible.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithPrefixOptions configures the prefix cache of every build.
func WithPrefixOptions(opts ...prefix.Option) Option {
	return func(s *Service) {
		s.prefixOpts = append(s.prefixOpts, opts...)
	}
}

// WithMetricsTextfile makes every run dump metrics to path when it ends.
func WithMetricsTextfile(path string) Option {
	return func(s *Service) {
		s.metricsTextfile = path
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
