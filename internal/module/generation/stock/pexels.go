package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/reelforge/server/internal/shared/config"
)

// PexelsProvider queries the Pexels video search API.
type PexelsProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewPexelsProvider creates a new Pexels provider.
func NewPexelsProvider(cfg *config.StockProviderConfig) *PexelsProvider {
	return &PexelsProvider{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Name returns the provider name.
func (p *PexelsProvider) Name() string { return "pexels" }

type pexelsResponse struct {
	Videos []struct {
		VideoFiles []struct {
			Quality string `json:"quality"`
			Width   int    `json:"width"`
			Link    string `json:"link"`
		} `json:"video_files"`
	} `json:"videos"`
}

// Search returns the first usable match, preferring SD files for faster
// downstream handling.
func (p *PexelsProvider) Search(ctx context.Context, keywords string) (string, error) {
	if p.apiKey == "" {
		return "", nil
	}

	endpoint := fmt.Sprintf("%s/videos/search?query=%s&per_page=5", p.baseURL, url.QueryEscape(keywords))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var searchResp pexelsResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	for _, video := range searchResp.Videos {
		best := ""
		bestWidth := 0
		for _, f := range video.VideoFiles {
			if f.Link == "" {
				continue
			}
			if f.Quality == "sd" {
				return f.Link, nil
			}
			// Fall back to the smallest file if no SD variant exists.
			if best == "" || f.Width < bestWidth {
				best = f.Link
				bestWidth = f.Width
			}
		}
		if best != "" {
			return best, nil
		}
	}

	return "", nil
}
