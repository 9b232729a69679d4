package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reelforge/server/internal/shared/config"
	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// GeminiSynthesizer implements Synthesizer against a Gemini-style TTS API.
type GeminiSynthesizer struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewGeminiSynthesizer creates a new speech synthesis client.
func NewGeminiSynthesizer(cfg *config.SpeechConfig) *GeminiSynthesizer {
	return &GeminiSynthesizer{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

type ttsRequest struct {
	Contents         []ttsContent `json:"contents"`
	GenerationConfig ttsGenConfig `json:"generationConfig"`
}

type ttsContent struct {
	Parts []ttsPart `json:"parts"`
}

type ttsPart struct {
	Text string `json:"text"`
}

type ttsGenConfig struct {
	ResponseModalities []string  `json:"responseModalities"`
	SpeechConfig       speechCfg `json:"speechConfig"`
}

type speechCfg struct {
	VoiceConfig voiceCfg `json:"voiceConfig"`
}

type voiceCfg struct {
	PrebuiltVoiceConfig prebuiltVoice `json:"prebuiltVoiceConfig"`
}

type prebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type ttsResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Synthesize produces 24 kHz mono PCM audio for the given text.
func (s *GeminiSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	reqBody := &ttsRequest{
		Contents: []ttsContent{{Parts: []ttsPart{{Text: text}}}},
		GenerationConfig: ttsGenConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: speechCfg{
				VoiceConfig: voiceCfg{
					PrebuiltVoiceConfig: prebuiltVoice{VoiceName: voice},
				},
			},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", s.baseURL, s.model, s.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var ttsResp ttsResponse
	if err := json.Unmarshal(respBody, &ttsResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if ttsResp.Error != nil {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%s: %w", ttsResp.Error.Message, apperrors.ErrUnauthorized)
		}
		return nil, fmt.Errorf("speech service error: %s", ttsResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	for _, cand := range ttsResp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("decode audio payload: %w", err)
				}
				return pcm, nil
			}
		}
	}

	return nil, fmt.Errorf("no audio in response")
}
