// Package extract guesses the graduate's name from raw diploma text.
//
// This is a best-effort heuristic over noisy PDF text: every rule may
// produce false candidates and the stoplist is a fixed, incomplete set.
// Callers treat "no candidate" and "wrong candidate" as ordinary per-item
// failures, not system errors.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Ordered pattern rules. Labelled fields first (Portuguese and English),
// then bare capitalized runs, then conferral phrases common in Brazilian
// diplomas. Capitalized runs stay within a single line so that adjacent
// headings never fuse into a phantom candidate.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)(?:Nome|Name):\s*([A-Za-zÀ-ÿ][A-Za-zÀ-ÿ ]+)`),
	regexp.MustCompile(`(?im)(?:Aluno|Student|Estudante):\s*([A-Za-zÀ-ÿ][A-Za-zÀ-ÿ ]+)`),
	regexp.MustCompile(`(?im)(?:Formando|Graduate|Graduando):\s*([A-Za-zÀ-ÿ][A-Za-zÀ-ÿ ]+)`),
	regexp.MustCompile(`(?m)([A-ZÁÀÂÃÉÊÍÓÔÕÚÇ]{2,}(?:[ \t]+[A-ZÁÀÂÃÉÊÍÓÔÕÚÇ]{2,})+)`),
	regexp.MustCompile(`(?m)([A-ZÁÀÂÃÉÊÍÓÔÕÚÇ][a-zà-ÿ]+(?:[ \t]+[A-ZÁÀÂÃÉÊÍÓÔÕÚÇ][a-zà-ÿ]+)+)`),
	regexp.MustCompile(`(?im)(?:confere a|outorga a|concede a|confers upon|grants to)\s+([A-Za-zÀ-ÿ ]+?)(?:\s+o\b|,|\.|\n)`),
	regexp.MustCompile(`(?m),\s*([A-ZÁÀÂÃÉÊÍÓÔÕÚÇ][a-zà-ÿ]+(?:[ \t]+[A-ZÁÀÂÃÉÊÍÓÔÕÚÇ][a-zà-ÿ]+)+)\s*,`),
}

// Vocabulary that marks a candidate as document boilerplate, not a person.
var stopWords = []string{
	"diploma", "certificado", "curso", "graduação", "bacharelado",
	"licenciatura", "universidade", "faculdade", "instituto",
	"mestrado", "doutorado", "especialização", "data", "ano",
	"degree", "certificate", "university", "college", "bachelor",
	"master", "doctor", "year", "date",
}

var disallowedChars = regexp.MustCompile(`[0-9@#$%^&*()_+=\[\]{}|;':",.<>?/\\]`)

const (
	minNameLen  = 3
	maxNameLen  = 100
	minNameWord = 2
)

// StudentName returns the most likely person-name substring of text in
// title case, or "" when nothing passes validation. Among valid candidates
// the one with the most words wins; character length breaks ties.
func StudentName(text string) string {
	var best string
	bestWords := 0

	for _, pattern := range namePatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			candidate := normalizeSpaces(match[1])
			if !validName(candidate) {
				continue
			}
			words := len(strings.Fields(candidate))
			if words > bestWords || (words == bestWords && len(candidate) > len(best)) {
				best = candidate
				bestWords = words
			}
		}
	}

	return titleCase(best)
}

func validName(name string) bool {
	if len(name) < minNameLen || len(name) > maxNameLen {
		return false
	}
	if len(strings.Fields(name)) < minNameWord {
		return false
	}
	if disallowedChars.MatchString(name) {
		return false
	}

	lower := strings.ToLower(name)
	for _, word := range stopWords {
		if strings.Contains(lower, word) {
			return false
		}
	}
	return true
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCase(s string) string {
	if s == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(s))
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
