package model

import "fmt"

// AspectRatio is the requested frame shape of a generated video.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
	AspectClassic   AspectRatio = "4:3"
	AspectTall      AspectRatio = "3:4"
)

// Valid reports whether the aspect ratio is one of the supported values.
func (a AspectRatio) Valid() bool {
	switch a {
	case AspectLandscape, AspectPortrait, AspectSquare, AspectClassic, AspectTall:
		return true
	}
	return false
}

// Voice selects the narration voice. VoiceSilent disables narration entirely.
type Voice string

const VoiceSilent Voice = "silent"

// Silent reports whether narration is disabled for this voice.
func (v Voice) Silent() bool {
	return v == VoiceSilent || v == ""
}

// GenerationRequest is the immutable input for one generation task.
type GenerationRequest struct {
	Prompt          string      `json:"prompt"`
	Script          string      `json:"script,omitempty"`
	DurationSeconds int         `json:"duration_seconds"`
	AspectRatio     AspectRatio `json:"aspect_ratio"`
	Voice           Voice       `json:"voice,omitempty"`
	Language        string      `json:"language,omitempty"`
}

// Validate checks the request fields.
func (r *GenerationRequest) Validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if r.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive")
	}
	if !r.AspectRatio.Valid() {
		return fmt.Errorf("unsupported aspect ratio %q", r.AspectRatio)
	}
	return nil
}

// ResultKind discriminates the GenerationResult variants.
type ResultKind string

const (
	ResultSingle   ResultKind = "single"
	ResultStitched ResultKind = "stitched"
)

// Narration is synthesized speech with its caption track.
type Narration struct {
	// Audio is the packaged WAV payload. It is never serialized; the
	// handler streams it from a dedicated endpoint.
	Audio []byte `json:"-"`

	// AudioURL is set when the audio was uploaded to artifact storage.
	AudioURL string `json:"audio_url,omitempty"`

	// Captions is the WEBVTT caption document.
	Captions string `json:"captions,omitempty"`
}

// SingleResult is a generation result backed by one video source.
type SingleResult struct {
	VideoURL  string     `json:"video_url"`
	Narration *Narration `json:"narration,omitempty"`
}

// StitchedResult is a generation result composed of several video sources
// driven by one shared narration timeline.
type StitchedResult struct {
	VideoURLs []string  `json:"video_urls"`
	Narration Narration `json:"narration"`
}

// GenerationResult is a tagged union: exactly one of Single or Stitched is
// set, matching Kind.
type GenerationResult struct {
	Kind       ResultKind      `json:"kind"`
	Single     *SingleResult   `json:"single,omitempty"`
	Stitched   *StitchedResult `json:"stitched,omitempty"`
	IsFallback bool            `json:"is_fallback"`
}

// NewSingleResult builds a single-source result.
func NewSingleResult(videoURL string, narration *Narration, isFallback bool) *GenerationResult {
	return &GenerationResult{
		Kind:       ResultSingle,
		Single:     &SingleResult{VideoURL: videoURL, Narration: narration},
		IsFallback: isFallback,
	}
}

// NewStitchedResult builds a stitched multi-clip result.
func NewStitchedResult(videoURLs []string, narration Narration) *GenerationResult {
	return &GenerationResult{
		Kind:       ResultStitched,
		Stitched:   &StitchedResult{VideoURLs: videoURLs, Narration: narration},
		IsFallback: true,
	}
}
