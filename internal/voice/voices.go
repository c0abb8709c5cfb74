package voice

import "strings"

// VoicePreference describes which installed voice the assistant should
// speak with. Locale is a BCP 47 tag; GenderMarker is a substring tested
// against voice names (engines embed it inconsistently, so matching is
// best-effort).
type VoicePreference struct {
	Name         string
	Locale       string
	GenderMarker string
}

// ChooseVoice picks the best installed voice for the preference, in
// descending priority: the named voice within the locale family, a
// family voice whose name carries the gender marker, an exact locale
// match, then any family match. ok is false when nothing matches; the
// caller should leave the engine default in place.
func ChooseVoice(available []Voice, pref VoicePreference) (Voice, bool) {
	family := localeFamily(pref.Locale)
	if family == "" {
		return Voice{}, false
	}

	type predicate func(Voice) bool
	inFamily := func(v Voice) bool { return localeFamily(v.Locale) == family }

	cascade := []predicate{
		func(v Voice) bool {
			return pref.Name != "" && inFamily(v) && strings.EqualFold(v.Name, pref.Name)
		},
		func(v Voice) bool {
			return pref.GenderMarker != "" && inFamily(v) &&
				strings.Contains(strings.ToLower(v.Name), strings.ToLower(pref.GenderMarker))
		},
		func(v Voice) bool { return strings.EqualFold(v.Locale, pref.Locale) },
		inFamily,
	}
	for _, match := range cascade {
		for _, v := range available {
			if match(v) {
				return v, true
			}
		}
	}
	return Voice{}, false
}

// localeFamily reduces a BCP 47 tag to its language subtag: "es-ES" and
// "es-MX" both collapse to "es".
func localeFamily(locale string) string {
	locale = strings.TrimSpace(strings.ToLower(locale))
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		return locale[:i]
	}
	return locale
}
