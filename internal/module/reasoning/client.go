package reasoning

import "context"

// Client provides free-text and schema-constrained completions from the
// reasoning service.
type Client interface {
	// Complete returns a free-text completion for the given instruction.
	Complete(ctx context.Context, instruction string) (string, error)

	// CompleteJSON returns a completion constrained to the given JSON
	// schema, unmarshalled into out.
	CompleteJSON(ctx context.Context, instruction string, schema Schema, out any) error
}

// Schema is a JSON schema constraint for structured completions.
type Schema map[string]any

// Compile-time interface assertions
var _ Client = (*GeminiClient)(nil)
