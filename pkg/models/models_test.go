package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateRun(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		sessionID string
		wantErr   error
	}{
		{"valid", "a castle at sunset", "sess-1", nil},
		{"empty prompt", "", "sess-1", ErrEmptyPrompt},
		{"empty session id", "a castle", "", ErrEmptySessionID},
		{"both empty", "", "", ErrEmptyPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRun(tt.prompt, tt.sessionID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRun() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionKeys(t *testing.T) {
	if got := SessionPromptKey("abc"); got != "prompt_abc" {
		t.Errorf("SessionPromptKey() = %q, want %q", got, "prompt_abc")
	}
	if got := SessionImageKey("abc"); got != "image_abc" {
		t.Errorf("SessionImageKey() = %q, want %q", got, "image_abc")
	}
	if got := SessionModelKey("abc"); got != "model_abc" {
		t.Errorf("SessionModelKey() = %q, want %q", got, "model_abc")
	}
	if got := CreationKey("abc"); got != "creation_abc" {
		t.Errorf("CreationKey() = %q, want %q", got, "creation_abc")
	}
}

func TestResultVariants(t *testing.T) {
	exp := &PromptExpansion{ExpandedPrompt: "expanded"}

	ok := SuccessResult("s1", exp, "a.png", "b.glb")
	if !ok.Success() {
		t.Error("SuccessResult() Success() = false, want true")
	}
	if ok.Err != "" {
		t.Errorf("SuccessResult() Err = %q, want empty", ok.Err)
	}

	fail := ErrorResult("s1", errors.New("boom"))
	if fail.Success() {
		t.Error("ErrorResult() Success() = true, want false")
	}
	if fail.Err != "boom" {
		t.Errorf("ErrorResult() Err = %q, want %q", fail.Err, "boom")
	}
	if fail.Prompt != nil || fail.ImagePath != "" || fail.ModelPath != "" {
		t.Error("ErrorResult() carries success fields")
	}
}

func TestResultJSONDiscriminator(t *testing.T) {
	fail := ErrorResult("s1", errors.New("service down"))
	data, err := json.Marshal(fail)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"status":"error"`) {
		t.Errorf("error result JSON missing discriminator: %s", data)
	}
	if strings.Contains(string(data), "image_path") {
		t.Errorf("error result JSON carries success fields: %s", data)
	}

	ok := SuccessResult("s1", &PromptExpansion{ExpandedPrompt: "x"}, "a.png", "b.glb")
	data, err = json.Marshal(ok)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"status":"success"`) {
		t.Errorf("success result JSON missing discriminator: %s", data)
	}
}
