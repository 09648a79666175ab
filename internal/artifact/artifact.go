// Package artifact persists binary pipeline outputs (generated images
// and 3D models) to uniquely named files.
package artifact

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var (
	ErrUnknownKind = errors.New("unknown artifact kind")
	ErrEmptyData   = errors.New("artifact data is empty")
)

type Kind string

const (
	KindImage Kind = "image"
	KindModel Kind = "model"
)

// Ext returns the file extension fixed by the artifact kind.
func (k Kind) Ext() string {
	switch k {
	case KindImage:
		return ".png"
	case KindModel:
		return ".glb"
	}
	return ""
}

func (k Kind) String() string {
	return string(k)
}

// Store writes artifacts under a base directory, one subdirectory per
// kind. Every write allocates a fresh uuid-named file; locators are
// never reused and files are never cleaned up here.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Save writes payload to a fresh file and returns its path. Text
// payloads that are valid base64 are decoded first; anything else is
// written unchanged. Failures here are fatal to the run, so Save
// returns an error rather than absorbing it.
func (s *Store) Save(kind Kind, payload []byte) (string, error) {
	ext := kind.Ext()
	if ext == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyData, kind)
	}

	data := decodeIfBase64(payload)

	dir := filepath.Join(s.baseDir, kind.String()+"s")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	path := filepath.Join(dir, uuid.New().String()+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s artifact: %w", kind, err)
	}
	return path, nil
}

// decodeIfBase64 decodes payload when it parses as standard base64
// text, otherwise returns it unchanged. Binary image or model data
// never survives a strict base64 decode, so misclassification is not a
// practical concern.
func decodeIfBase64(payload []byte) []byte {
	trimmed := bytes.TrimSpace(payload)
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(decoded, trimmed)
	if err != nil {
		return payload
	}
	return decoded[:n]
}
