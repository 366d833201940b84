// Package bookinfo looks up bibliographic data for an ISBN in public
// catalogues.
package bookinfo

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotFound is returned when no source knows the code.
var ErrNotFound = errors.New("book info not found")

// Info is what a catalogue knows about a book. Empty strings mean unknown.
type Info struct {
	Title         string
	Authors       []string
	Publisher     string
	PublishedDate string
	ThumbnailURL  string
}

// Source looks up a normalized ISBN.
type Source interface {
	Lookup(ctx context.Context, code string) (*Info, error)
}

// Chain asks each source in turn and returns the first answer.
type Chain struct {
	sources []Source
	logger  *slog.Logger
}

// NewChain creates a Chain. A nil logger means slog.Default().
func NewChain(logger *slog.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{sources: sources, logger: logger}
}

// Lookup implements Source. It returns ErrNotFound when every source fails.
func (c *Chain) Lookup(ctx context.Context, code string) (*Info, error) {
	for i, src := range c.sources {
		info, err := src.Lookup(ctx, code)
		if err == nil {
			return info, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("book info source failed", "source", i, "code", code, "error", err)
		}
	}
	return nil, ErrNotFound
}
