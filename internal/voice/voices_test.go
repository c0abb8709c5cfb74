package voice

import "testing"

func spanishInventory() []Voice {
	return []Voice{
		{ID: "en-1", Name: "Daniel", Locale: "en-GB"},
		{ID: "es-mx-f", Name: "Paulina (female)", Locale: "es-MX"},
		{ID: "es-es-m", Name: "Jorge", Locale: "es-ES"},
		{ID: "es-es-f", Name: "Monica female", Locale: "es-ES"},
		{ID: "fr-1", Name: "Amelie", Locale: "fr-FR", Default: true},
	}
}

func TestChooseVoicePrefersNamedVoiceInFamily(t *testing.T) {
	v, ok := ChooseVoice(spanishInventory(), VoicePreference{
		Name:         "jorge",
		Locale:       "es-ES",
		GenderMarker: "female",
	})
	if !ok {
		t.Fatal("expected a match")
	}
	if v.ID != "es-es-m" {
		t.Fatalf("expected the named voice, got %q", v.ID)
	}
}

func TestChooseVoiceFallsBackToGenderMarker(t *testing.T) {
	v, ok := ChooseVoice(spanishInventory(), VoicePreference{
		Name:         "No Such Voice",
		Locale:       "es-ES",
		GenderMarker: "female",
	})
	if !ok {
		t.Fatal("expected a match")
	}
	// First family voice carrying the marker wins, regardless of region.
	if v.ID != "es-mx-f" {
		t.Fatalf("expected the marked family voice, got %q", v.ID)
	}
}

func TestChooseVoiceFallsBackToExactLocale(t *testing.T) {
	inventory := []Voice{
		{ID: "es-mx", Name: "Paulina", Locale: "es-MX"},
		{ID: "es-es", Name: "Jorge", Locale: "es-ES"},
	}
	v, ok := ChooseVoice(inventory, VoicePreference{
		Locale:       "es-ES",
		GenderMarker: "female",
	})
	if !ok {
		t.Fatal("expected a match")
	}
	if v.ID != "es-es" {
		t.Fatalf("expected the exact-locale voice, got %q", v.ID)
	}
}

func TestChooseVoiceFallsBackToLocaleFamily(t *testing.T) {
	inventory := []Voice{
		{ID: "en", Name: "Daniel", Locale: "en-GB"},
		{ID: "es-mx", Name: "Paulina", Locale: "es-MX"},
	}
	v, ok := ChooseVoice(inventory, VoicePreference{Locale: "es-ES"})
	if !ok {
		t.Fatal("expected a match")
	}
	if v.ID != "es-mx" {
		t.Fatalf("expected the family voice, got %q", v.ID)
	}
}

func TestChooseVoiceNoMatchLeavesDefault(t *testing.T) {
	inventory := []Voice{
		{ID: "en", Name: "Daniel", Locale: "en-GB"},
	}
	if _, ok := ChooseVoice(inventory, VoicePreference{Locale: "es-ES"}); ok {
		t.Fatal("expected no match for a locale absent from the inventory")
	}
	if _, ok := ChooseVoice(nil, VoicePreference{Locale: "es-ES"}); ok {
		t.Fatal("expected no match against an empty inventory")
	}
	if _, ok := ChooseVoice(spanishInventory(), VoicePreference{}); ok {
		t.Fatal("expected no match for an empty preference")
	}
}

func TestLocaleFamily(t *testing.T) {
	cases := map[string]string{
		"es-ES": "es",
		"es_MX": "es",
		"es":    "es",
		"EN-gb": "en",
		"":      "",
	}
	for in, want := range cases {
		if got := localeFamily(in); got != want {
			t.Fatalf("localeFamily(%q) = %q, want %q", in, got, want)
		}
	}
}
