// Package service talks to the remote generation services. The
// services are opaque request/response black boxes: the text-to-image
// service takes {prompt} and returns {image}; the image-to-3D service
// takes {image, params} and returns {model, metadata?}.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// Service ids used by the pipeline.
	Text2Img = "text2img"
	Model3D  = "model3d"

	defaultTimeout = 300 * time.Second
)

var (
	ErrNotConfigured = errors.New("service not configured")
	ErrCallFailed    = errors.New("service call failed")
)

// Caller dispatches a request to the external service identified by
// serviceID on behalf of sessionID.
type Caller interface {
	Call(ctx context.Context, serviceID string, req map[string]any, sessionID string) (map[string]any, error)
}

// Endpoint is one remote service location plus its optional API key.
type Endpoint struct {
	URL    string
	APIKey string
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error *apiError `json:"error,omitempty"`
}

// HTTPCaller implements Caller over HTTP JSON endpoints.
type HTTPCaller struct {
	endpoints  map[string]Endpoint
	httpClient *http.Client
}

func NewHTTPCaller(endpoints map[string]Endpoint) *HTTPCaller {
	return &HTTPCaller{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

func (c *HTTPCaller) Call(ctx context.Context, serviceID string, req map[string]any, sessionID string) (map[string]any, error) {
	endpoint, ok := c.endpoints[serviceID]
	if !ok || endpoint.URL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, serviceID)
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Session-ID", sessionID)
	if endpoint.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCallFailed, serviceID, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var envelope errorEnvelope
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrCallFailed, serviceID, envelope.Error.Message)
		}
		return nil, fmt.Errorf("%w: %s: status %d", ErrCallFailed, serviceID, httpResp.StatusCode)
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", serviceID, err)
	}
	return resp, nil
}
