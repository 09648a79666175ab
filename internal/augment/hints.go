package augment

import "strings"

// Heuristic classifiers over expansion text. Pure functions: no model
// call, no failure mode. Matching is case-insensitive substring search.

var brightTerms = []string{"bright", "sunny", "daylight"}

var wideTerms = []string{"panorama", "wide", "vast"}

// ExtractLighting classifies the light source and mood of an expansion.
func ExtractLighting(text string) map[string]string {
	lower := strings.ToLower(text)

	primary := "artificial"
	if strings.Contains(lower, "sunlight") {
		primary = "natural"
	}

	mood := "dark"
	if containsAny(lower, brightTerms) {
		mood = "bright"
	}

	return map[string]string{
		"primary_light": primary,
		"mood":          mood,
	}
}

// ExtractComposition classifies the perspective and focal plane of an
// expansion.
func ExtractComposition(text string) map[string]string {
	lower := strings.ToLower(text)

	perspective := "close"
	if containsAny(lower, wideTerms) {
		perspective = "wide"
	}

	focus := "background"
	if strings.Contains(lower, "foreground") {
		focus = "foreground"
	}

	return map[string]string{
		"perspective": perspective,
		"focus":       focus,
	}
}

func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
