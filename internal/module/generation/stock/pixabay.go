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

// PixabayProvider queries the Pixabay video search API.
type PixabayProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewPixabayProvider creates a new Pixabay provider.
func NewPixabayProvider(cfg *config.StockProviderConfig) *PixabayProvider {
	return &PixabayProvider{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Name returns the provider name.
func (p *PixabayProvider) Name() string { return "pixabay" }

type pixabayResponse struct {
	Hits []struct {
		Videos struct {
			Medium struct {
				URL string `json:"url"`
			} `json:"medium"`
			Small struct {
				URL string `json:"url"`
			} `json:"small"`
		} `json:"videos"`
	} `json:"hits"`
}

// Search returns the first usable match, preferring the medium rendition.
func (p *PixabayProvider) Search(ctx context.Context, keywords string) (string, error) {
	if p.apiKey == "" {
		return "", nil
	}

	endpoint := fmt.Sprintf("%s/videos/?key=%s&q=%s&per_page=5",
		p.baseURL, url.QueryEscape(p.apiKey), url.QueryEscape(keywords))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

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

	var searchResp pixabayResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	for _, hit := range searchResp.Hits {
		if hit.Videos.Medium.URL != "" {
			return hit.Videos.Medium.URL, nil
		}
		if hit.Videos.Small.URL != "" {
			return hit.Videos.Small.URL, nil
		}
	}

	return "", nil
}
