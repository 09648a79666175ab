package augment

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/manash/artgen/pkg/models"
)

const systemContext = `You are an expert artistic director specializing in both 2D and 3D art.
Enhance and expand the given prompt with vivid, specific details that will guide both image
generation and 3D modeling. Focus on lighting, composition, perspective, materials, and mood.`

const technicalInstruction = "Extract key technical aspects for 3D modeling:"

// GenerateRequest is one bounded completion request against the local
// model.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Generator is the minimal surface the augmenter needs from a local
// text-generation model.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Augmenter expands a user prompt into a richer description plus
// style and technical hints using a local language model.
type Augmenter struct {
	gen Generator
	log *zap.Logger
}

// New builds an Augmenter. gen may be nil when no local model is
// available; Expand then falls open on every call. logger may be nil.
func New(gen Generator, logger *zap.Logger) *Augmenter {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Augmenter{gen: gen, log: logger}
}

// Expand runs the two-pass expansion. It never fails: any model error
// is absorbed and the original prompt is returned with empty hints.
func (a *Augmenter) Expand(ctx context.Context, prompt string) *models.PromptExpansion {
	fallback := &models.PromptExpansion{ExpandedPrompt: prompt}

	if a.gen == nil {
		a.log.Warn("local model unavailable, using prompt verbatim")
		return fallback
	}

	fullPrompt := systemContext + "\nOriginal prompt: " + prompt + "\nEnhanced description:"

	expanded, err := a.gen.Generate(ctx, GenerateRequest{
		Prompt:      fullPrompt,
		MaxTokens:   512,
		Temperature: 0.7,
		Stop:        []string{"Original prompt:", "\n\n"},
	})
	if err != nil {
		a.log.Warn("prompt expansion failed, using prompt verbatim", zap.Error(err))
		return fallback
	}

	technical, err := a.gen.Generate(ctx, GenerateRequest{
		Prompt:      expanded + "\n" + technicalInstruction,
		MaxTokens:   256,
		Temperature: 0.3,
	})
	if err != nil {
		a.log.Warn("technical extraction failed, using prompt verbatim", zap.Error(err))
		return fallback
	}

	return &models.PromptExpansion{
		ExpandedPrompt: strings.TrimSpace(expanded),
		StyleHints: models.StyleHints{
			Lighting:    ExtractLighting(expanded),
			Composition: ExtractComposition(expanded),
		},
		TechnicalParams: strings.TrimSpace(technical),
	}
}
