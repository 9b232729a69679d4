package media

import (
	"context"

	"github.com/reelforge/server/internal/model"
)

// RenderRequest describes one video render job.
type RenderRequest struct {
	Prompt          string
	AspectRatio     model.AspectRatio
	DurationSeconds int
	Resolution      string
}

// Operation is an opaque handle to a long-running render job, polled until
// Done is set.
type Operation struct {
	Name         string
	Done         bool
	VideoURI     string
	ErrorMessage string
}

// Generator is the generative media service.
type Generator interface {
	// Start issues a render request and returns its operation handle.
	Start(ctx context.Context, req *RenderRequest) (*Operation, error)

	// Poll refreshes the operation handle.
	Poll(ctx context.Context, op *Operation) (*Operation, error)

	// Download fetches the finished render payload.
	Download(ctx context.Context, uri string) ([]byte, error)
}

// Compile-time interface assertions
var _ Generator = (*VeoClient)(nil)
