// Package language maps free-text profile language names to the codes the
// transcription and translation backends expect.
package language

import "strings"

type codes struct {
	Transcription string // BCP-47-ish code for the speech backend
	Translation   string // base ISO 639-1 code for the translation backend
}

var byName = map[string]codes{
	"english":              {"en-US", "en"},
	"spanish":              {"es", "es"},
	"french":               {"fr", "fr"},
	"german":               {"de", "de"},
	"italian":              {"it", "it"},
	"portuguese":           {"pt", "pt"},
	"brazilian portuguese": {"pt-BR", "pt"},
	"dutch":                {"nl", "nl"},
	"russian":              {"ru", "ru"},
	"ukrainian":            {"uk", "uk"},
	"polish":               {"pl", "pl"},
	"turkish":              {"tr", "tr"},
	"arabic":               {"ar", "ar"},
	"hebrew":               {"he", "he"},
	"hindi":                {"hi", "hi"},
	"indonesian":           {"id", "id"},
	"malay":                {"ms", "ms"},
	"japanese":             {"ja", "ja"},
	"korean":               {"ko", "ko"},
	"chinese":              {"zh", "zh"},
	"mandarin":             {"zh", "zh"},
	"vietnamese":           {"vi", "vi"},
	"thai":                 {"th", "th"},
	"swedish":              {"sv", "sv"},
	"norwegian":            {"no", "no"},
	"danish":               {"da", "da"},
	"finnish":              {"fi", "fi"},
	"greek":                {"el", "el"},
	"czech":                {"cs", "cs"},
	"romanian":             {"ro", "ro"},
	"hungarian":            {"hu", "hu"},
	"tagalog":              {"tl", "tl"},
	"filipino":             {"tl", "tl"},
}

const (
	defaultTranscription = "en-US"
	defaultTranslation   = "en"
)

// TranscriptionCode resolves a profile language value to the code used when
// opening a streaming transcription session. Unknown or empty input falls
// back to US English; this function never fails.
func TranscriptionCode(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if c, ok := byName[key]; ok {
		return c.Transcription
	}
	if code, ok := canonicalCode(name); ok {
		return code
	}
	return defaultTranscription
}

// TranslationCode resolves a profile language value to the base code used by
// the translation backend. Unknown or empty input falls back to "en".
func TranslationCode(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if c, ok := byName[key]; ok {
		return c.Translation
	}
	if code, ok := canonicalCode(name); ok {
		return Base(code)
	}
	return defaultTranslation
}

// Base strips a regional suffix from a language code: "pt-BR" -> "pt",
// "en_US" -> "en". Used to decide whether two participants need translation
// between each other at all.
func Base(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return strings.ToLower(code)
}

// canonicalCode accepts values that already look like language codes
// ("es", "pt-br", "en_US") and canonicalizes them to "xx" / "xx-YY".
func canonicalCode(v string) (string, bool) {
	v = strings.TrimSpace(strings.ReplaceAll(v, "_", "-"))
	parts := strings.Split(v, "-")
	if len(parts) > 2 || len(parts[0]) != 2 || !alpha(parts[0]) {
		return "", false
	}
	code := strings.ToLower(parts[0])
	if len(parts) == 2 {
		if len(parts[1]) != 2 || !alpha(parts[1]) {
			return "", false
		}
		code += "-" + strings.ToUpper(parts[1])
	}
	return code, true
}

func alpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
