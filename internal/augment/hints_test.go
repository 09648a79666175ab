package augment

import "testing"

func TestExtractLighting(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantPrimary string
		wantMood    string
	}{
		{"sunlight and bright", "warm sunlight over a bright meadow", "natural", "bright"},
		{"sunlight only", "soft sunlight through fog", "natural", "dark"},
		{"sunny", "a sunny afternoon in the plaza", "artificial", "bright"},
		{"daylight", "harsh daylight on concrete", "artificial", "bright"},
		{"neither", "a dim neon alley at midnight", "artificial", "dark"},
		{"case insensitive", "SUNLIGHT and BRIGHT colors", "natural", "bright"},
		{"empty", "", "artificial", "dark"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractLighting(tt.text)
			if got["primary_light"] != tt.wantPrimary {
				t.Errorf("primary_light = %q, want %q", got["primary_light"], tt.wantPrimary)
			}
			if got["mood"] != tt.wantMood {
				t.Errorf("mood = %q, want %q", got["mood"], tt.wantMood)
			}
		})
	}
}

func TestExtractComposition(t *testing.T) {
	tests := []struct {
		name            string
		text            string
		wantPerspective string
		wantFocus       string
	}{
		{"panorama", "a sweeping panorama of the valley", "wide", "background"},
		{"wide", "a wide shot of the harbor", "wide", "background"},
		{"vast", "a vast desert under stars", "wide", "background"},
		{"foreground", "a flower in the foreground, castle behind", "close", "foreground"},
		{"wide with foreground", "vast plains with rocks in the foreground", "wide", "foreground"},
		{"neither", "a portrait of an old sailor", "close", "background"},
		{"case insensitive", "VAST landscape, FOREGROUND detail", "wide", "foreground"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractComposition(tt.text)
			if got["perspective"] != tt.wantPerspective {
				t.Errorf("perspective = %q, want %q", got["perspective"], tt.wantPerspective)
			}
			if got["focus"] != tt.wantFocus {
				t.Errorf("focus = %q, want %q", got["focus"], tt.wantFocus)
			}
		})
	}
}
