package voice

import "strings"

// Voice selection degrades gracefully: the set of synthesis voices varies
// unpredictably by platform and browser, so a user-chosen label falls through
// progressively weaker matches instead of producing silence.

type voiceCategory struct {
	langPrefix string
	marker     string
	names      []string
}

// The four canonical preference categories, each with a small curated list of
// known vendor voice names whose labels carry no gender marker.
var voiceCategories = map[string]voiceCategory{
	"en-US-female": {
		langPrefix: "en-US",
		marker:     "female",
		names:      []string{"samantha", "victoria", "allison", "microsoft zira", "google us english"},
	},
	"en-US-male": {
		langPrefix: "en-US",
		marker:     "male",
		names:      []string{"alex", "fred", "microsoft david", "microsoft mark"},
	},
	"en-GB-female": {
		langPrefix: "en-GB",
		marker:     "female",
		names:      []string{"kate", "serena", "microsoft hazel", "google uk english female"},
	},
	"en-GB-male": {
		langPrefix: "en-GB",
		marker:     "male",
		names:      []string{"daniel", "oliver", "microsoft george", "google uk english male"},
	},
}

// SelectVoice resolves a user preference against the available voices.
// Returns nil when nothing matches; the platform default is used then.
func SelectVoice(preference string, available []VoiceInfo) *VoiceInfo {
	preference = strings.TrimSpace(preference)
	if len(available) == 0 {
		return nil
	}

	// 1. Exact name match for a concrete preference.
	if preference != "" && !strings.EqualFold(preference, "default") {
		for i := range available {
			if strings.EqualFold(available[i].Name, preference) {
				return &available[i]
			}
		}
	}

	// 2. Canonical category: language prefix plus a gender marker or a
	// curated vendor name.
	if cat, ok := voiceCategories[preference]; ok {
		for i := range available {
			if !langMatches(available[i].Lang, cat.langPrefix) {
				continue
			}
			name := strings.ToLower(available[i].Name)
			if hasMarker(name, cat.marker) || containsName(cat.names, name) {
				return &available[i]
			}
		}
	}

	// 3. Fixed generic fallback chain.
	chain := []func(VoiceInfo) bool{
		func(v VoiceInfo) bool { return strings.EqualFold(v.Name, "samantha") },
		func(v VoiceInfo) bool { return strings.EqualFold(v.Name, "alex") },
		func(v VoiceInfo) bool { return strings.Contains(strings.ToLower(v.Name), "google us english") },
		func(v VoiceInfo) bool { return strings.Contains(strings.ToLower(v.Name), "google uk english") },
		func(v VoiceInfo) bool { return langMatches(v.Lang, "en-US") },
		func(v VoiceInfo) bool { return langMatches(v.Lang, "en-GB") },
		func(v VoiceInfo) bool { return langMatches(v.Lang, "en") },
		func(v VoiceInfo) bool { return strings.Contains(strings.ToLower(v.Name), "english") },
	}
	for _, match := range chain {
		for i := range available {
			if match(available[i]) {
				return &available[i]
			}
		}
	}

	// 4. Platform default.
	return nil
}

func langMatches(lang, prefix string) bool {
	lang = strings.ReplaceAll(lang, "_", "-")
	if len(lang) < len(prefix) {
		return false
	}
	if !strings.EqualFold(lang[:len(prefix)], prefix) {
		return false
	}
	return len(lang) == len(prefix) || lang[len(prefix)] == '-'
}

// hasMarker matches a gender marker in a voice label. "female" contains
// "male", so the male marker must exclude female-labelled voices.
func hasMarker(name, marker string) bool {
	if marker == "male" && strings.Contains(name, "female") {
		return false
	}
	return strings.Contains(name, marker)
}

func containsName(names []string, lowered string) bool {
	for _, n := range names {
		if lowered == n {
			return true
		}
	}
	return false
}
