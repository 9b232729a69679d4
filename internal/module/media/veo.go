package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reelforge/server/internal/shared/config"
	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// VeoClient implements Generator against a Veo-style predictLongRunning API.
type VeoClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewVeoClient creates a new generative media client.
func NewVeoClient(cfg *config.VideoProviderConfig) *VeoClient {
	return &VeoClient{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	SampleCount     int    `json:"sampleCount"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response *struct {
		GenerateVideoResponse *struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse,omitempty"`
	} `json:"response,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Start issues a render request and returns its operation handle.
func (c *VeoClient) Start(ctx context.Context, req *RenderRequest) (*Operation, error) {
	reqBody := &predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: predictParameters{
			AspectRatio:     string(req.AspectRatio),
			SampleCount:     1,
			DurationSeconds: req.DurationSeconds,
			Resolution:      req.Resolution,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning?key=%s", c.baseURL, c.model, c.apiKey)
	opResp, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	return operationFromResponse(opResp), nil
}

// Poll refreshes the operation handle.
func (c *VeoClient) Poll(ctx context.Context, op *Operation) (*Operation, error) {
	endpoint := fmt.Sprintf("%s/%s?key=%s", c.baseURL, op.Name, c.apiKey)
	opResp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	return operationFromResponse(opResp), nil
}

// Download fetches the finished render payload. The access credential is
// appended as a query parameter.
func (c *VeoClient) Download(ctx context.Context, uri string) ([]byte, error) {
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	downloadURL := uri + sep + "key=" + url.QueryEscape(c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (c *VeoClient) do(ctx context.Context, method, endpoint string, body []byte) (*operationResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var opResp operationResponse
	if err := json.Unmarshal(respBody, &opResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if opResp.Error != nil && !opResp.Done {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, fmt.Errorf("%s: %w", opResp.Error.Message, apperrors.ErrUnauthorized)
		case http.StatusTooManyRequests, http.StatusPaymentRequired:
			return nil, apperrors.QuotaExceeded(opResp.Error.Message)
		}
		return nil, fmt.Errorf("%s", opResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return &opResp, nil
}

func operationFromResponse(resp *operationResponse) *Operation {
	op := &Operation{
		Name: resp.Name,
		Done: resp.Done,
	}
	if resp.Error != nil {
		op.ErrorMessage = resp.Error.Message
	}
	if resp.Response != nil && resp.Response.GenerateVideoResponse != nil {
		samples := resp.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) > 0 {
			op.VideoURI = samples[0].Video.URI
		}
	}
	return op
}
