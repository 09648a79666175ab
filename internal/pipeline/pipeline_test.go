package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/manash/artgen/internal/artifact"
	"github.com/manash/artgen/internal/augment"
	"github.com/manash/artgen/internal/memory"
	"github.com/manash/artgen/internal/service"
	"github.com/manash/artgen/pkg/models"
)

// fakeCaller implements service.Caller for testing.
type fakeCaller struct {
	callFunc func(ctx context.Context, serviceID string, req map[string]any, sessionID string) (map[string]any, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeCaller) Call(ctx context.Context, serviceID string, req map[string]any, sessionID string) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, serviceID)
	f.mu.Unlock()
	if f.callFunc != nil {
		return f.callFunc(ctx, serviceID, req, sessionID)
	}
	return happyResponse(serviceID), nil
}

func happyResponse(serviceID string) map[string]any {
	switch serviceID {
	case service.Text2Img:
		return map[string]any{"image": base64.StdEncoding.EncodeToString([]byte("png bytes"))}
	case service.Model3D:
		return map[string]any{
			"model":    base64.StdEncoding.EncodeToString([]byte("glb bytes")),
			"metadata": map[string]any{"vertices": float64(1024)},
		}
	}
	return nil
}

// brightGenerator always produces an expansion with known hint terms.
type brightGenerator struct{}

func (brightGenerator) Generate(_ context.Context, req augment.GenerateRequest) (string, error) {
	if strings.Contains(req.Prompt, "Extract key technical aspects") {
		return "medium-poly, metallic roughness maps", nil
	}
	return "A castle at sunset, bright golden sunlight across a vast plain", nil
}

// downGenerator simulates an unavailable local model.
type downGenerator struct{}

func (downGenerator) Generate(context.Context, augment.GenerateRequest) (string, error) {
	return "", errors.New("connection refused")
}

func testOrchestrator(t *testing.T, gen augment.Generator) (*Orchestrator, *memory.Store) {
	t.Helper()
	dir := t.TempDir()

	mem, err := memory.Open(filepath.Join(dir, "memory.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("memory.Open() error = %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	artifacts, err := artifact.NewStore(filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("artifact.NewStore() error = %v", err)
	}

	augmenter := augment.New(gen, zap.NewNop())
	return New(augmenter, mem, artifacts, zap.NewNop()), mem
}

func TestOrchestrator_ProcessSuccess(t *testing.T) {
	orch, mem := testOrchestrator(t, brightGenerator{})
	caller := &fakeCaller{}
	ctx := context.Background()

	result := orch.Process(ctx, "a castle at sunset", caller, "sess-1")

	if result.Status != models.StatusSuccess {
		t.Fatalf("Process() status = %q, err = %q", result.Status, result.Err)
	}
	if !strings.HasSuffix(result.ImagePath, ".png") {
		t.Errorf("ImagePath = %q, want .png suffix", result.ImagePath)
	}
	if !strings.HasSuffix(result.ModelPath, ".glb") {
		t.Errorf("ModelPath = %q, want .glb suffix", result.ModelPath)
	}
	if result.SessionID != "sess-1" {
		t.Errorf("SessionID = %q", result.SessionID)
	}
	if got := result.Prompt.StyleHints.Lighting["mood"]; got != "bright" {
		t.Errorf("lighting mood = %q, want %q (expansion contains a brightness term)", got, "bright")
	}

	// All three session breadcrumbs plus the consolidated record exist.
	for _, key := range []string{"prompt_sess-1", "image_sess-1", "model_sess-1"} {
		if _, ok := mem.GetSession(key); !ok {
			t.Errorf("session record %q missing", key)
		}
	}
	var record models.CreationRecord
	if err := mem.GetPersistentInto(ctx, "creation_sess-1", &record); err != nil {
		t.Fatalf("GetPersistentInto(creation) error = %v", err)
	}
	if record.Prompt.Original != "a castle at sunset" {
		t.Errorf("creation record original prompt = %q", record.Prompt.Original)
	}
	if record.Image.Path != result.ImagePath || record.Model.Path != result.ModelPath {
		t.Error("creation record paths do not match result paths")
	}
	if record.Model.Metadata["vertices"] != float64(1024) {
		t.Errorf("creation record model metadata = %v", record.Model.Metadata)
	}

	if want := []string{service.Text2Img, service.Model3D}; len(caller.calls) != 2 ||
		caller.calls[0] != want[0] || caller.calls[1] != want[1] {
		t.Errorf("service calls = %v, want %v", caller.calls, want)
	}
}

func TestOrchestrator_ProcessModelUnavailable(t *testing.T) {
	// The pipeline still completes with the original prompt verbatim
	// when the local model is down.
	orch, _ := testOrchestrator(t, downGenerator{})
	caller := &fakeCaller{
		callFunc: func(_ context.Context, serviceID string, req map[string]any, _ string) (map[string]any, error) {
			if serviceID == service.Text2Img && req["prompt"] != "a castle at sunset" {
				return nil, fmt.Errorf("unexpected prompt %v", req["prompt"])
			}
			return happyResponse(serviceID), nil
		},
	}

	result := orch.Process(context.Background(), "a castle at sunset", caller, "sess-2")

	if result.Status != models.StatusSuccess {
		t.Fatalf("Process() status = %q, err = %q", result.Status, result.Err)
	}
	if result.Prompt.ExpandedPrompt != "a castle at sunset" {
		t.Errorf("ExpandedPrompt = %q, want original prompt verbatim", result.Prompt.ExpandedPrompt)
	}
	if result.Prompt.StyleHints.Lighting != nil {
		t.Error("StyleHints not empty after fail-open")
	}
}

func TestOrchestrator_ProcessImageFailure(t *testing.T) {
	orch, mem := testOrchestrator(t, brightGenerator{})
	caller := &fakeCaller{
		callFunc: func(_ context.Context, serviceID string, _ map[string]any, _ string) (map[string]any, error) {
			if serviceID == service.Text2Img {
				return nil, errors.New("image service down")
			}
			return happyResponse(serviceID), nil
		},
	}
	ctx := context.Background()

	result := orch.Process(ctx, "a castle at sunset", caller, "sess-3")

	if result.Status != models.StatusError {
		t.Fatalf("Process() status = %q, want error", result.Status)
	}
	if !strings.Contains(result.Err, "image service down") {
		t.Errorf("Err = %q, want triggering message", result.Err)
	}

	// The prompt breadcrumb survives; no later stage ran and no
	// persistent record exists.
	if _, ok := mem.GetSession("prompt_sess-3"); !ok {
		t.Error("prompt session record missing after image failure")
	}
	if _, ok := mem.GetSession("image_sess-3"); ok {
		t.Error("image session record exists for failed stage")
	}
	if _, err := mem.GetPersistent(ctx, "creation_sess-3"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("GetPersistent(creation) error = %v, want ErrNotFound", err)
	}

	// The model service was never called.
	for _, id := range caller.calls {
		if id == service.Model3D {
			t.Error("model service called after image failure")
		}
	}
}

func TestOrchestrator_ProcessModelFailure(t *testing.T) {
	orch, mem := testOrchestrator(t, brightGenerator{})
	caller := &fakeCaller{
		callFunc: func(_ context.Context, serviceID string, _ map[string]any, _ string) (map[string]any, error) {
			if serviceID == service.Model3D {
				return nil, errors.New("mesh reconstruction failed")
			}
			return happyResponse(serviceID), nil
		},
	}
	ctx := context.Background()

	result := orch.Process(ctx, "a castle at sunset", caller, "sess-4")

	if result.Status != models.StatusError {
		t.Fatalf("Process() status = %q, want error", result.Status)
	}

	// Breadcrumbs up to the failed stage remain.
	if _, ok := mem.GetSession("prompt_sess-4"); !ok {
		t.Error("prompt session record missing")
	}
	if _, ok := mem.GetSession("image_sess-4"); !ok {
		t.Error("image session record missing")
	}
	if _, ok := mem.GetSession("model_sess-4"); ok {
		t.Error("model session record exists for failed stage")
	}
	if _, err := mem.GetPersistent(ctx, "creation_sess-4"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("GetPersistent(creation) error = %v, want ErrNotFound", err)
	}
}

func TestOrchestrator_ProcessMissingPayload(t *testing.T) {
	orch, _ := testOrchestrator(t, brightGenerator{})
	caller := &fakeCaller{
		callFunc: func(_ context.Context, serviceID string, _ map[string]any, _ string) (map[string]any, error) {
			if serviceID == service.Text2Img {
				return map[string]any{}, nil
			}
			return happyResponse(serviceID), nil
		},
	}

	result := orch.Process(context.Background(), "a castle", caller, "sess-5")
	if result.Status != models.StatusError {
		t.Fatalf("Process() status = %q, want error", result.Status)
	}
	if !strings.Contains(result.Err, "no payload") {
		t.Errorf("Err = %q", result.Err)
	}
}

func TestOrchestrator_ProcessInvalidInput(t *testing.T) {
	orch, _ := testOrchestrator(t, brightGenerator{})
	caller := &fakeCaller{}

	result := orch.Process(context.Background(), "", caller, "sess-6")
	if result.Status != models.StatusError {
		t.Fatalf("Process() status = %q, want error", result.Status)
	}
	if len(caller.calls) != 0 {
		t.Error("services called for invalid input")
	}
}

func TestOrchestrator_ProcessConcurrentRuns(t *testing.T) {
	orch, mem := testOrchestrator(t, brightGenerator{})
	caller := &fakeCaller{}
	ctx := context.Background()

	const runs = 4
	results := make([]*models.Result, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("concurrent-%d", i)
			results[i] = orch.Process(ctx, "a castle at sunset", caller, sessionID)
		}(i)
	}
	wg.Wait()

	seenPaths := make(map[string]bool)
	for i, result := range results {
		if result.Status != models.StatusSuccess {
			t.Fatalf("run %d: status = %q, err = %q", i, result.Status, result.Err)
		}
		if seenPaths[result.ImagePath] || seenPaths[result.ModelPath] {
			t.Errorf("run %d: artifact path reused across runs", i)
		}
		seenPaths[result.ImagePath] = true
		seenPaths[result.ModelPath] = true

		var record models.CreationRecord
		key := fmt.Sprintf("creation_concurrent-%d", i)
		if err := mem.GetPersistentInto(ctx, key, &record); err != nil {
			t.Fatalf("run %d: GetPersistentInto() error = %v", i, err)
		}
		if record.Image.Path != result.ImagePath {
			t.Errorf("run %d: persistent record interfered with another run", i)
		}
	}
}

func TestPayloadBytes(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    string
		wantErr bool
	}{
		{"string", "aGVsbG8=", "aGVsbG8=", false},
		{"bytes", []byte{0x1, 0x2}, "\x01\x02", false},
		{"empty string", "", "", true},
		{"nil", nil, "", true},
		{"wrong type", 42, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payloadBytes(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("payloadBytes() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && string(got) != tt.want {
				t.Errorf("payloadBytes() = %q, want %q", got, tt.want)
			}
		})
	}
}
