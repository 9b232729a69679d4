package stock

import "context"

// Provider is a stock footage source. Search returns a playable video URL
// for the given keywords, or "" when nothing usable matches.
type Provider interface {
	Name() string
	Search(ctx context.Context, keywords string) (string, error)
}

// Compile-time interface assertions
var (
	_ Provider = (*PexelsProvider)(nil)
	_ Provider = (*PixabayProvider)(nil)
)
