package prefix

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithThreshold sets the minimum membership count a prefix needs to survive.
func WithThreshold(n uint32) Option {
	return func(b *Builder) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithTopSize sets how many members each prefix keeps.
func WithTopSize(n int) Option {
	return func(b *Builder) {
		if n > 0 && n <= maxTopSize {
			b.topSize = n
		}
	}
}

// WithCommonPrefixes replaces the literal prefixes tracked independently of
// the first-grapheme groups. They are matched against lowercase keys, so they
// are lowercased here. Empty strings are ignored.
func WithCommonPrefixes(literals []string) Option {
	return func(b *Builder) {
		b.literals = b.literals[:0]
		for _, l := range literals {
			if l = lowerLiteral(l); l != "" {
				b.literals = append(b.literals, l)
			}
		}
	}
}

// WithLiteralExtensions sets how many graphemes past a matched literal are
// tracked as their own prefixes.
func WithLiteralExtensions(n int) Option {
	return func(b *Builder) {
		if n >= 0 {
			b.literalExtensions = n
		}
	}
}
