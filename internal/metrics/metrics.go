// Package metrics derives live writing statistics from document content.
//
// The grade level is a heuristic built on average sentence length only. It is
// not a validated readability formula and is reported as an estimate.
package metrics

import (
	"math"
	"strings"
	"unicode"
)

const (
	WordsPerMinute = 200
	MinGrade       = 6
	MaxGrade       = 16
)

// Metrics is recomputed once per accepted buffer mutation.
type Metrics struct {
	WordCount   int `json:"wordCount"`
	ReadingTime int `json:"readingTime"`
	GradeLevel  int `json:"gradeLevel"`
}

// Compute is pure and never fails. Compute("") returns {0, 0, MinGrade}.
func Compute(content string) Metrics {
	words := countWords(content)
	return Metrics{
		WordCount:   words,
		ReadingTime: readingTime(words),
		GradeLevel:  gradeLevel(words, countSentences(content)),
	}
}

func countWords(content string) int {
	return len(strings.FieldsFunc(content, unicode.IsSpace))
}

func readingTime(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// countSentences counts runs of terminal punctuation so that "..." or "?!"
// end a single sentence. The result is floored at 1.
func countSentences(content string) int {
	count := 0
	inRun := false
	for _, r := range content {
		if isTerminal(r) {
			if !inRun {
				count++
			}
			inRun = true
			continue
		}
		inRun = false
	}
	if count < 1 {
		return 1
	}
	return count
}

func gradeLevel(words, sentences int) int {
	if sentences < 1 {
		sentences = 1
	}
	avg := float64(words) / float64(sentences)
	grade := int(math.Floor(avg*0.4 + 6))
	return clamp(grade, MinGrade, MaxGrade)
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
