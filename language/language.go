// Package language guesses the language a feed is written in
package language

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"github.com/samber/lo"
)

// Detector picks the dominant language of a set of posts among a fixed
// list of candidates, answering with an ISO 639-1 code.
type Detector struct {
	detector   lingua.LanguageDetector
	fallback   string
	minLetters int
}

// NewDetector builds a detector for the given ISO 639-1 codes. Unknown codes
// are ignored; with fewer than two usable candidates every call returns fallback.
func NewDetector(candidates []string, fallback string) *Detector {
	d := &Detector{
		fallback:   strings.ToLower(fallback),
		minLetters: 12,
	}

	languages := isoToLingua(candidates)
	if len(languages) >= 2 {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithMinimumRelativeDistance(0.1).
			Build()
	}

	return d
}

// Detect returns the language most posts are written in. Posts too short to
// say anything are ignored; if nothing can be detected the fallback is used.
func (d *Detector) Detect(texts []string) string {
	if d.detector == nil {
		return d.fallback
	}

	counts := map[string]int{}
	for _, text := range texts {
		if !hasEnoughLetters(text, d.minLetters) {
			continue
		}
		lang, ok := d.detector.DetectLanguageOf(text)
		if !ok {
			continue
		}
		counts[linguaToISO(lang)]++
	}

	if len(counts) == 0 {
		return d.fallback
	}

	best := lo.MaxBy(lo.Entries(counts), func(a, b lo.Entry[string, int]) bool {
		// Ties go to the alphabetically first code so the result is stable
		return a.Value > b.Value || (a.Value == b.Value && a.Key < b.Key)
	})
	return best.Key
}

func hasEnoughLetters(text string, min int) bool {
	letters := 0
	for _, r := range text {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 127 {
			letters++
			if letters >= min {
				return true
			}
		}
	}
	return false
}

func linguaToISO(lang lingua.Language) string {
	return strings.ToLower(lang.IsoCode639_1().String())
}

func isoToLingua(codes []string) []lingua.Language {
	supported := map[string]lingua.Language{}
	for _, lang := range lingua.AllLanguages() {
		supported[linguaToISO(lang)] = lang
	}

	return lo.Uniq(lo.FilterMap(codes, func(code string, _ int) (lingua.Language, bool) {
		lang, ok := supported[strings.ToLower(strings.TrimSpace(code))]
		return lang, ok
	}))
}
