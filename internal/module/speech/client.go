package speech

import "context"

// SampleRate is the PCM sample rate the synthesis service returns.
const SampleRate = 24000

// Synthesizer produces single-channel PCM speech audio at SampleRate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Compile-time interface assertions
var _ Synthesizer = (*GeminiSynthesizer)(nil)
