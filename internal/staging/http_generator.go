package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps the generator response body.
const maxResponseBytes = 1 << 20

// DefaultGeneratorTimeout bounds a generation call when none is configured.
// Image generation is slow; two minutes is typical.
const DefaultGeneratorTimeout = 120 * time.Second

// HTTPGenerator calls an external image generation endpoint with a JSON
// request and expects {"stagedImageUrl": "..."} or {"error": "..."}.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPGenerator creates a generator for endpoint. apiKey, when set, is
// sent as a bearer token.
func NewHTTPGenerator(endpoint, apiKey string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = DefaultGeneratorTimeout
	}
	return &HTTPGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type generateResponse struct {
	StagedImageURL string `json:"stagedImageUrl"`
	Error          string `json:"error"`
}

// Generate implements Generator. Any non-2xx status or an error field in
// the body is a failure.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling generator: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading generator response: %w", err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != "" {
			return "", fmt.Errorf("generator returned %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("generator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decoding generator response: %w", decodeErr)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	if out.StagedImageURL == "" {
		return "", errEmptyResult
	}
	return out.StagedImageURL, nil
}
