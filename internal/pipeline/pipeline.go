// Package pipeline sequences one creative run: prompt augmentation,
// image generation, 3D model generation, then persistence into the
// durable memory tier.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/manash/artgen/internal/artifact"
	"github.com/manash/artgen/internal/augment"
	"github.com/manash/artgen/internal/memory"
	"github.com/manash/artgen/internal/service"
	"github.com/manash/artgen/pkg/models"
)

var ErrNoPayload = errors.New("service response has no payload")

// Stage names, used in logs and error messages.
const (
	StageExpand        = "expand"
	StageGenerateImage = "generate_image"
	StageGenerateModel = "generate_model"
	StagePersist       = "persist"
)

// Orchestrator drives the fixed four-stage pipeline. Augmentation
// fails open; every later stage is fatal on failure and aborts the
// run. Runs are independent: concurrent Process calls share only the
// memory store and the artifact directory.
type Orchestrator struct {
	augmenter *augment.Augmenter
	memory    *memory.Store
	artifacts *artifact.Store
	log       *zap.Logger
}

func New(augmenter *augment.Augmenter, mem *memory.Store, artifacts *artifact.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Orchestrator{
		augmenter: augmenter,
		memory:    mem,
		artifacts: artifacts,
		log:       logger,
	}
}

// Process runs prompt through the whole pipeline under sessionID,
// dispatching remote work through caller. The returned result is the
// success variant only when all four stages completed; on any fatal
// failure the remaining stages are skipped and no persistent record is
// written. Session records for stages that did finish are left in
// place as diagnostic breadcrumbs.
func (o *Orchestrator) Process(ctx context.Context, prompt string, caller service.Caller, sessionID string) *models.Result {
	if err := models.ValidateRun(prompt, sessionID); err != nil {
		return o.fail(sessionID, StageExpand, err)
	}

	// Stage 1: expand. Cannot fail; the augmenter falls open internally.
	expanded := o.augmenter.Expand(ctx, prompt)
	o.memory.SaveSession(models.SessionPromptKey(sessionID), map[string]any{
		"original": prompt,
		"expanded": expanded,
	})

	// Stage 2: generate the image from the expanded prompt.
	imgResp, err := caller.Call(ctx, service.Text2Img, map[string]any{
		"prompt": expanded.ExpandedPrompt,
	}, sessionID)
	if err != nil {
		return o.fail(sessionID, StageGenerateImage, err)
	}

	imgPayload, err := payloadBytes(imgResp["image"])
	if err != nil {
		return o.fail(sessionID, StageGenerateImage, err)
	}
	imgPath, err := o.artifacts.Save(artifact.KindImage, imgPayload)
	if err != nil {
		return o.fail(sessionID, StageGenerateImage, err)
	}
	o.memory.SaveSession(models.SessionImageKey(sessionID), map[string]any{
		"path":     imgPath,
		"metadata": expanded.StyleHints,
	})

	// Stage 3: derive the 3D model from the stored image.
	modelResp, err := caller.Call(ctx, service.Model3D, map[string]any{
		"image":  imgPath,
		"params": expanded.TechnicalParams,
	}, sessionID)
	if err != nil {
		return o.fail(sessionID, StageGenerateModel, err)
	}

	modelPayload, err := payloadBytes(modelResp["model"])
	if err != nil {
		return o.fail(sessionID, StageGenerateModel, err)
	}
	modelPath, err := o.artifacts.Save(artifact.KindModel, modelPayload)
	if err != nil {
		return o.fail(sessionID, StageGenerateModel, err)
	}
	modelMeta := metadataMap(modelResp["metadata"])
	o.memory.SaveSession(models.SessionModelKey(sessionID), map[string]any{
		"path":     modelPath,
		"metadata": modelMeta,
	})

	// Stage 4: consolidate into the persistent tier. All-or-nothing:
	// this is the only persistent write of the run.
	record := models.CreationRecord{
		Prompt: models.PromptRecord{Original: prompt, Expanded: *expanded},
		Image:  models.ArtifactRecord{Path: imgPath, Metadata: styleHintsMap(expanded.StyleHints)},
		Model:  models.ArtifactRecord{Path: modelPath, Metadata: modelMeta},
	}
	if err := o.memory.SavePersistent(ctx, models.CreationKey(sessionID), record); err != nil {
		return o.fail(sessionID, StagePersist, err)
	}

	o.log.Info("pipeline completed",
		zap.String("session_id", sessionID),
		zap.String("image_path", imgPath),
		zap.String("model_path", modelPath))

	return models.SuccessResult(sessionID, expanded, imgPath, modelPath)
}

func (o *Orchestrator) fail(sessionID, stage string, err error) *models.Result {
	o.log.Error("pipeline stage failed",
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
		zap.Error(err))
	return models.ErrorResult(sessionID, err)
}

// payloadBytes extracts a binary or base64-text payload from a decoded
// service response value.
func payloadBytes(v any) ([]byte, error) {
	switch data := v.(type) {
	case string:
		if data == "" {
			return nil, ErrNoPayload
		}
		return []byte(data), nil
	case []byte:
		if len(data) == 0 {
			return nil, ErrNoPayload
		}
		return data, nil
	case nil:
		return nil, ErrNoPayload
	default:
		return nil, fmt.Errorf("%w: unexpected payload type %T", ErrNoPayload, v)
	}
}

func metadataMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func styleHintsMap(hints models.StyleHints) map[string]any {
	m := map[string]any{}
	if hints.Lighting != nil {
		m["lighting"] = hints.Lighting
	}
	if hints.Composition != nil {
		m["composition"] = hints.Composition
	}
	return m
}
