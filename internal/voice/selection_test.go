package voice

import "testing"

func TestSelectVoiceExactName(t *testing.T) {
	available := []VoiceInfo{
		{Name: "Alex", Lang: "en-US"},
		{Name: "Victoria", Lang: "en-US"},
	}
	got := SelectVoice("victoria", available)
	if got == nil || got.Name != "Victoria" {
		t.Fatalf("SelectVoice(victoria) = %+v, want Victoria", got)
	}
}

func TestSelectVoiceCategoryByGenderMarker(t *testing.T) {
	available := []VoiceInfo{
		{Name: "Microsoft David", Lang: "en-US"},
		{Name: "Google UK English Female", Lang: "en-GB"},
	}
	got := SelectVoice("en-GB-female", available)
	if got == nil || got.Name != "Google UK English Female" {
		t.Fatalf("SelectVoice(en-GB-female) = %+v, want Google UK English Female", got)
	}
}

func TestSelectVoiceCategoryByCuratedName(t *testing.T) {
	// Curated names carry no gender marker in their labels.
	available := []VoiceInfo{
		{Name: "Daniel", Lang: "en-GB"},
		{Name: "Samantha", Lang: "en-US"},
	}
	got := SelectVoice("en-US-female", available)
	if got == nil || got.Name != "Samantha" {
		t.Fatalf("SelectVoice(en-US-female) = %+v, want Samantha", got)
	}
	got = SelectVoice("en-GB-male", available)
	if got == nil || got.Name != "Daniel" {
		t.Fatalf("SelectVoice(en-GB-male) = %+v, want Daniel", got)
	}
}

func TestSelectVoiceMaleCategorySkipsFemaleLabels(t *testing.T) {
	available := []VoiceInfo{
		{Name: "Google UK English Female", Lang: "en-GB"},
		{Name: "Google UK English Male", Lang: "en-GB"},
	}
	got := SelectVoice("en-GB-male", available)
	if got == nil || got.Name != "Google UK English Male" {
		t.Fatalf("SelectVoice(en-GB-male) = %+v, want Google UK English Male", got)
	}
}

func TestSelectVoiceCategoryLangUnderscore(t *testing.T) {
	available := []VoiceInfo{
		{Name: "Microsoft Zira", Lang: "en_US"},
	}
	got := SelectVoice("en-US-female", available)
	if got == nil || got.Name != "Microsoft Zira" {
		t.Fatalf("SelectVoice with en_US lang = %+v, want Microsoft Zira", got)
	}
}

func TestSelectVoiceGenericChain(t *testing.T) {
	cases := []struct {
		name      string
		available []VoiceInfo
		want      string
	}{
		{
			name: "samantha wins over alex",
			available: []VoiceInfo{
				{Name: "Alex", Lang: "en-US"},
				{Name: "Samantha", Lang: "en-US"},
			},
			want: "Samantha",
		},
		{
			name: "google us before google uk",
			available: []VoiceInfo{
				{Name: "Google UK English Male", Lang: "en-GB"},
				{Name: "Google US English", Lang: "en-US"},
			},
			want: "Google US English",
		},
		{
			name: "en-US before en-GB",
			available: []VoiceInfo{
				{Name: "Kate", Lang: "en-GB"},
				{Name: "Nora", Lang: "en-US"},
			},
			want: "Nora",
		},
		{
			name: "any english lang variant",
			available: []VoiceInfo{
				{Name: "Anna", Lang: "de-DE"},
				{Name: "Karen", Lang: "en-AU"},
			},
			want: "Karen",
		},
		{
			name: "english in the label as last resort",
			available: []VoiceInfo{
				{Name: "Anna", Lang: "de-DE"},
				{Name: "South African English", Lang: "af-ZA"},
			},
			want: "South African English",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectVoice("default", tc.available)
			if got == nil || got.Name != tc.want {
				t.Fatalf("SelectVoice = %+v, want %s", got, tc.want)
			}
		})
	}
}

func TestSelectVoiceNoMatchFallsToPlatformDefault(t *testing.T) {
	available := []VoiceInfo{
		{Name: "Anna", Lang: "de-DE"},
		{Name: "Amelie", Lang: "fr-CA"},
	}
	if got := SelectVoice("default", available); got != nil {
		t.Fatalf("SelectVoice = %+v, want nil (platform default)", got)
	}
	if got := SelectVoice("anything", nil); got != nil {
		t.Fatalf("SelectVoice with no voices = %+v, want nil", got)
	}
}

func TestLangMatchesBoundary(t *testing.T) {
	if langMatches("enx-US", "en") {
		t.Fatalf("langMatches(enx-US, en) = true, want false")
	}
	if !langMatches("en-US", "en") {
		t.Fatalf("langMatches(en-US, en) = false, want true")
	}
	if !langMatches("en", "en") {
		t.Fatalf("langMatches(en, en) = false, want true")
	}
}
