package messages

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

type LanguageDetector interface {
	// Detect returns a lowercase ISO 639-1 code.
	Detect(text string) (string, bool)
}

type linguaDetector struct {
	detector lingua.LanguageDetector
}

// NewLanguageDetector loads models for every language lingua knows. Low accuracy
// mode keeps memory use down at the cost of short texts.
func NewLanguageDetector() LanguageDetector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		WithLowAccuracyMode().
		Build()
	return &linguaDetector{detector: detector}
}

func (d *linguaDetector) Detect(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	language, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(language.IsoCode639_1().String()), true
}
