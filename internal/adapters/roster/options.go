package roster

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithHistoryLimit caps how many skin changes are kept per client.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithIDGenerator overrides how new client ids are made.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}
