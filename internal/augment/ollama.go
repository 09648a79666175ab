package augment

import (
	"context"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaGenerator implements Generator against a local ollama server.
// The server address comes from OLLAMA_HOST, defaulting to
// localhost:11434.
type OllamaGenerator struct {
	client *api.Client
	model  string
}

func NewOllamaGenerator(model string) (*OllamaGenerator, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaGenerator{client: client, model: model}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	stream := false
	apiReq := &api.GenerateRequest{
		Model:  g.model,
		Prompt: req.Prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if len(req.Stop) > 0 {
		apiReq.Options["stop"] = req.Stop
	}

	var sb strings.Builder
	err := g.client.Generate(ctx, apiReq, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	return sb.String(), nil
}
