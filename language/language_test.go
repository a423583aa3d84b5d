package language_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"threadsrss/language"
)

func TestDetect(t *testing.T) {
	detector := language.NewDetector([]string{"en", "de", "es", "fr"}, "en")

	tests := []struct {
		name     string
		texts    []string
		expected string
	}{
		{
			name: "german majority",
			texts: []string{
				"Heute ist das Wetter in Berlin wirklich wunderschön und sonnig.",
				"Ich gehe morgen mit meinen Freunden ins Kino und danach essen.",
				"The weather is lovely today and I am going for a long walk.",
			},
			expected: "de",
		},
		{
			name: "spanish",
			texts: []string{
				"Mañana vamos a la playa con toda la familia para celebrar el cumpleaños.",
			},
			expected: "es",
		},
		{
			name:     "too short to tell",
			texts:    []string{"ok", "lol 😂", "👍👍👍"},
			expected: "en",
		},
		{
			name:     "nothing at all",
			texts:    nil,
			expected: "en",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, detector.Detect(tt.texts))
		})
	}
}

func TestDetectWithoutCandidates(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
	}{
		{name: "none", candidates: nil},
		{name: "single", candidates: []string{"de"}},
		{name: "unknown codes", candidates: []string{"xx", "yy"}},
		{name: "duplicates", candidates: []string{"de", "DE", " de "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := language.NewDetector(tt.candidates, "NB")
			assert.Equal(t, "nb", detector.Detect([]string{"Heute ist das Wetter in Berlin wirklich wunderschön."}))
		})
	}
}
