package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPrompt    = errors.New("prompt cannot be empty")
	ErrEmptySessionID = errors.New("session id cannot be empty")
)

// StyleHints carries the lighting and composition attributes extracted
// from an expanded prompt. Both maps are nil when augmentation failed
// open and no expansion text was available.
type StyleHints struct {
	Lighting    map[string]string `json:"lighting,omitempty"`
	Composition map[string]string `json:"composition,omitempty"`
}

// PromptExpansion is the augmenter's output for a single source prompt.
// TechnicalParams is an opaque free-text blob passed verbatim to the
// model-generation service.
type PromptExpansion struct {
	ExpandedPrompt  string     `json:"expanded_prompt"`
	StyleHints      StyleHints `json:"style_hints"`
	TechnicalParams string     `json:"technical_params"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the tagged outcome of one pipeline run. Status
// discriminates the variants: success carries Prompt, ImagePath and
// ModelPath; error carries Err. SessionID is always set.
type Result struct {
	Status    Status           `json:"status"`
	Prompt    *PromptExpansion `json:"prompt,omitempty"`
	ImagePath string           `json:"image_path,omitempty"`
	ModelPath string           `json:"model_path,omitempty"`
	Err       string           `json:"error,omitempty"`
	SessionID string           `json:"session_id"`
}

func (r *Result) Success() bool {
	return r.Status == StatusSuccess
}

// PromptRecord is the prompt portion of a creation record: the
// caller's original prompt plus the augmenter's expansion.
type PromptRecord struct {
	Original string          `json:"original"`
	Expanded PromptExpansion `json:"expanded"`
}

// ArtifactRecord points at one stored artifact file together with the
// metadata captured at generation time.
type ArtifactRecord struct {
	Path     string         `json:"path"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreationRecord is the consolidated record written to the persistent
// tier under creation_<session_id>, and only after every prior stage
// succeeded. A partial creation record never exists.
type CreationRecord struct {
	Prompt PromptRecord   `json:"prompt"`
	Image  ArtifactRecord `json:"image"`
	Model  ArtifactRecord `json:"model"`
}

// Key namespaces for the two memory tiers.
const (
	SessionPromptPrefix = "prompt_"
	SessionImagePrefix  = "image_"
	SessionModelPrefix  = "model_"
	CreationPrefix      = "creation_"
)

func SessionPromptKey(sessionID string) string { return SessionPromptPrefix + sessionID }
func SessionImageKey(sessionID string) string  { return SessionImagePrefix + sessionID }
func SessionModelKey(sessionID string) string  { return SessionModelPrefix + sessionID }
func CreationKey(sessionID string) string      { return CreationPrefix + sessionID }

// ValidateRun checks the two caller-supplied inputs of a pipeline run.
func ValidateRun(prompt, sessionID string) error {
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if sessionID == "" {
		return ErrEmptySessionID
	}
	return nil
}

// ErrorResult builds the error variant of Result.
func ErrorResult(sessionID string, err error) *Result {
	return &Result{
		Status:    StatusError,
		Err:       err.Error(),
		SessionID: sessionID,
	}
}

// SuccessResult builds the success variant of Result.
func SuccessResult(sessionID string, prompt *PromptExpansion, imagePath, modelPath string) *Result {
	return &Result{
		Status:    StatusSuccess,
		Prompt:    prompt,
		ImagePath: imagePath,
		ModelPath: modelPath,
		SessionID: sessionID,
	}
}

func (s Status) String() string {
	return string(s)
}

func (r *Result) String() string {
	if r.Success() {
		return fmt.Sprintf("success (session %s): image=%s model=%s", r.SessionID, r.ImagePath, r.ModelPath)
	}
	return fmt.Sprintf("error (session %s): %s", r.SessionID, r.Err)
}
