package language

import (
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

const English = "en"

// minReliableRunes is the shortest text the detector is trusted on.
const minReliableRunes = 20

var names = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"bn": "Bengali",
	"ta": "Tamil",
	"te": "Telugu",
	"mr": "Marathi",
	"gu": "Gujarati",
	"kn": "Kannada",
	"ml": "Malayalam",
	"pa": "Punjabi",
	"ur": "Urdu",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"pt": "Portuguese",
	"it": "Italian",
	"id": "Indonesian",
	"ar": "Arabic",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ru": "Russian",
}

// Name returns a display name for an ISO 639-1 code, or the code itself.
func Name(code string) string {
	if n, ok := names[strings.ToLower(code)]; ok {
		return n
	}
	return code
}

type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns an ISO 639-1 code. Short, ambiguous or unsupported text
// is reported as English.
func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return English
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return English
	}
	if utf8.RuneCountInString(text) < minReliableRunes && !info.IsReliable() {
		return English
	}
	return code
}

// Reliable reports whether text is long enough for Detect to be trusted.
func (d *Detector) Reliable(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= minReliableRunes
}
