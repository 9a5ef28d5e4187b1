package content

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// minDetectRunes is the shortest text handed to the detector.
const minDetectRunes = 20

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

func languageDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.English, lingua.German, lingua.French, lingua.Spanish,
				lingua.Chinese, lingua.Russian, lingua.Italian, lingua.Portuguese,
				lingua.Dutch, lingua.Swedish, lingua.Danish, lingua.Finnish,
				lingua.Polish, lingua.Czech, lingua.Japanese, lingua.Korean,
			).
			Build()
	})
	return detector
}

// DetectLanguage returns the lowercase ISO 639-1 code of text, or "" when
// the text is too short or the language cannot be told.
func DetectLanguage(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minDetectRunes {
		return ""
	}

	language, ok := languageDetector().DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(language.IsoCode639_1().String())
}
