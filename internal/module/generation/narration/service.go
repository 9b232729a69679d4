package narration

import (
	"context"
	"fmt"
	"strings"

	"github.com/reelforge/server/internal/model"
	"github.com/reelforge/server/internal/module/reasoning"
	"github.com/reelforge/server/internal/module/speech"
	"github.com/reelforge/server/internal/shared/logger"
)

// CaptionHeader is the sentinel token a caption document must begin with.
const CaptionHeader = "WEBVTT"

// Service produces narration audio and caption tracks for a script.
type Service struct {
	reasoning reasoning.Client
	tts       speech.Synthesizer
	voice     string
	log       *logger.Logger
}

// NewService creates a new narration service. voice is the synthesis voice
// id passed to the speech service.
func NewService(client reasoning.Client, tts speech.Synthesizer, voice string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New(nil)
	}
	return &Service{
		reasoning: client,
		tts:       tts,
		voice:     voice,
		log:       log,
	}
}

// GenerateScript writes a narration script for a prompt sized to the target
// duration.
func (s *Service) GenerateScript(ctx context.Context, prompt string, durationSeconds int) (string, error) {
	instruction := fmt.Sprintf(
		`Write a voiceover script for a %d second video about: %s.
A narrator reads it at a natural pace, so keep it short enough to fit the duration.
Answer with only the script text, no stage directions or headings.`,
		durationSeconds, prompt,
	)

	script, err := s.reasoning.Complete(ctx, instruction)
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return "", fmt.Errorf("generate script: empty script")
	}
	return script, nil
}

// Synthesize produces narration for the script: a caption document whose
// cues jointly approximate the duration, and mono speech audio packaged as
// a WAV container.
func (s *Service) Synthesize(ctx context.Context, script string, durationSeconds int, voice model.Voice, language string) (*model.Narration, error) {
	captions, err := s.generateCaptions(ctx, script, durationSeconds, language)
	if err != nil {
		return nil, err
	}

	pcm, err := s.tts.Synthesize(ctx, script, s.voiceID(voice))
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("synthesize speech: no audio produced")
	}

	return &model.Narration{
		Audio:    encodeWAV(pcm, speech.SampleRate, 1, 16),
		Captions: captions,
	}, nil
}

// generateCaptions asks the reasoning service for a caption track and
// ensures it carries the required header.
func (s *Service) generateCaptions(ctx context.Context, script string, durationSeconds int, language string) (string, error) {
	lang := language
	if lang == "" {
		lang = "the script's language"
	}

	instruction := fmt.Sprintf(
		`Produce a WEBVTT caption track for the following narration script, in %s.
The cues together must span roughly %d seconds, timed as a narrator would read the script aloud.
Use the form "MM:SS.mmm --> MM:SS.mmm" for every timing line.
Answer with only the caption document.

Script:
%s`,
		lang, durationSeconds, script,
	)

	doc, err := s.reasoning.Complete(ctx, instruction)
	if err != nil {
		return "", fmt.Errorf("generate captions: %w", err)
	}

	doc = strings.TrimSpace(doc)
	if doc == "" {
		return "", fmt.Errorf("generate captions: empty document")
	}

	// The header line must be exactly the sentinel token.
	if !strings.HasPrefix(doc, CaptionHeader) {
		s.log.Debug("caption document missing header, injecting")
		doc = CaptionHeader + "\n\n" + doc
	}

	return doc, nil
}

// voiceID maps a request voice onto the synthesis voice id.
func (s *Service) voiceID(voice model.Voice) string {
	if voice == "" || voice.Silent() {
		return s.voice
	}
	return string(voice)
}
