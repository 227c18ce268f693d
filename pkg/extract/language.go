package extract

import (
	"regexp"
	"strings"
)

// DefaultLanguage is assumed when no other language scores high enough.
const DefaultLanguage = "en"

const languageThreshold = 2

type languagePatterns struct {
	code     string
	patterns []*regexp.Regexp
}

// Checked in order; the first language to reach the threshold wins.
var languages = []languagePatterns{
	{"es", compileAll(`¿`, `ñ`, `á|é|í|ó|ú`, `\bel\b|\bla\b|\bde\b|\ben\b`)},
	{"fr", compileAll(`ç`, `à|é|è|ê|ë|î|ï|ô|ù|û|ü|ÿ`, `\ble\b|\bla\b|\bde\b|\bet\b`)},
	{"de", compileAll(`ä|ö|ü|ß`, `\bder\b|\bdie\b|\bdas\b|\bund\b`)},
	{"it", compileAll(`\bil\b|\bla\b|\bdi\b|\be\b|\bche\b`, `à|è|ì|ò|ù`)},
	{"pt", compileAll(`ã|õ`, `\bo\b|\ba\b|\bde\b|\bem\b`)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// DetectLanguage guesses the language of text from diacritics and stop
// words. It returns DefaultLanguage unless some language matches at least
// two of its patterns.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	for _, lang := range languages {
		score := 0
		for _, p := range lang.patterns {
			if p.MatchString(lower) {
				score++
			}
		}
		if score >= languageThreshold {
			return lang.code
		}
	}
	return DefaultLanguage
}
