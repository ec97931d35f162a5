package metrics

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	DefaultKeywordLimit = 10
	mostCommonLimit     = 10
	complexSyllables    = 3
)

// Report is the extended analysis shown in the analytics panel.
type Report struct {
	Metrics
	SentenceCount          int         `json:"sentenceCount"`
	CharacterCount         int         `json:"characterCount"`
	SyllableCount          int         `json:"syllableCount"`
	ComplexWordCount       int         `json:"complexWordCount"`
	AverageSentenceLength  float64     `json:"averageSentenceLength"`
	UniqueWords            int         `json:"uniqueWords"`
	VocabularyDiversity    float64     `json:"vocabularyDiversity"`
	AdverbPercentage       float64     `json:"adverbPercentage"`
	PassiveVoicePercentage float64     `json:"passiveVoicePercentage"`
	ReadabilityScore       float64     `json:"readabilityScore"`
	ClarityScore           float64     `json:"clarityScore"`
	EngagementScore        float64     `json:"engagementScore"`
	MostCommonWords        []WordCount `json:"mostCommonWords"`
}

type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

var (
	passiveIndicators = set("was", "were", "been", "being", "is", "are", "am")
	activeIndicators  = set("we", "you", "i", "they")
	transitionWords   = set("however", "therefore", "moreover", "furthermore", "additionally")
	stopWords         = set(
		"a", "about", "above", "after", "again", "against", "all", "am", "an", "and", "any", "are", "as", "at",
		"be", "because", "been", "before", "being", "below", "between", "both", "but", "by",
		"can", "could", "did", "do", "does", "doing", "down", "during", "each", "few", "for", "from", "further",
		"had", "has", "have", "having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
		"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more", "most", "my", "myself",
		"no", "nor", "not", "now", "of", "off", "on", "once", "only", "or", "other", "our", "ours", "ourselves", "out", "over", "own",
		"same", "she", "should", "so", "some", "such", "than", "that", "the", "their", "theirs", "them", "themselves",
		"then", "there", "these", "they", "this", "those", "through", "to", "too", "under", "until", "up",
		"very", "was", "we", "were", "what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
		"would", "you", "your", "yours", "yourself", "yourselves",
	)
)

func Analyze(content string) Report {
	base := Compute(content)
	report := Report{
		Metrics:         base,
		CharacterCount:  len([]rune(content)),
		MostCommonWords: []WordCount{},
	}
	if base.WordCount == 0 {
		return report
	}

	sentences := countSentences(content)
	report.SentenceCount = sentences
	report.AverageSentenceLength = round1(float64(base.WordCount) / float64(sentences))

	words := tokens(content)
	seen := make(map[string]struct{})
	adverbs, passive, active, transitions := 0, 0, 0, 0
	for _, word := range words {
		seen[word] = struct{}{}
		syllables := countSyllables(word)
		report.SyllableCount += syllables
		if syllables >= complexSyllables {
			report.ComplexWordCount++
		}
		if len(word) > 3 && strings.HasSuffix(word, "ly") {
			adverbs++
		}
		if _, ok := passiveIndicators[word]; ok {
			passive++
		}
		if _, ok := activeIndicators[word]; ok {
			active++
		}
		if _, ok := transitionWords[word]; ok {
			transitions++
		}
	}
	report.UniqueWords = len(seen)
	report.EngagementScore = engagement(strings.Count(content, "?"), active, transitions)
	report.MostCommonWords = topWords(words, 0, mostCommonLimit)
	if len(words) == 0 {
		return report
	}

	n := float64(len(words))
	perSentence := n / float64(sentences)
	report.VocabularyDiversity = round1(math.Min(100, float64(len(seen))/n*200))
	report.AdverbPercentage = round1(float64(adverbs) / n * 100)
	report.PassiveVoicePercentage = round1(float64(passive) / n * 100)
	report.ReadabilityScore = round1(bound(206.835-1.015*perSentence-84.6*(float64(report.SyllableCount)/n), 0, 100))

	lengthScore := bound(100-(perSentence-15)*2, 0, 100)
	complexityScore := bound(100-float64(report.ComplexWordCount)/n*200, 0, 100)
	report.ClarityScore = round1((lengthScore + complexityScore) / 2)
	return report
}

// Keywords returns the most frequent words longer than three letters that are
// not stop words, most frequent first. limit <= 0 means DefaultKeywordLimit.
func Keywords(content string, limit int) []string {
	if limit <= 0 {
		limit = DefaultKeywordLimit
	}
	counts := topWords(tokens(content), 4, limit)
	keywords := make([]string, 0, len(counts))
	for _, item := range counts {
		keywords = append(keywords, item.Word)
	}
	return keywords
}

// tokens splits content on whitespace and keeps the lower-cased letters-only
// core of each token.
func tokens(content string) []string {
	fields := strings.FieldsFunc(content, unicode.IsSpace)
	words := make([]string, 0, len(fields))
	for _, token := range fields {
		word := strings.ToLower(strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r)
		}))
		if word != "" {
			words = append(words, word)
		}
	}
	return words
}

// topWords counts non-stop words of at least minLen runes. Ties keep the
// order of first appearance.
func topWords(words []string, minLen, limit int) []WordCount {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, word := range words {
		if _, stop := stopWords[word]; stop || len([]rune(word)) < minLen {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	items := make([]WordCount, 0, len(order))
	for _, word := range order {
		items = append(items, WordCount{Word: word, Count: counts[word]})
	}
	return items
}

// countSyllables counts vowel groups, dropping a silent trailing e.
func countSyllables(word string) int {
	count := 0
	inGroup := false
	for _, r := range word {
		if strings.ContainsRune("aeiouy", r) {
			if !inGroup {
				count++
			}
			inGroup = true
			continue
		}
		inGroup = false
	}
	if count > 1 && strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") {
		count--
	}
	if count < 1 {
		return 1
	}
	return count
}

func engagement(questions, active, transitions int) float64 {
	score := 50 + math.Min(float64(questions*5), 20) + math.Min(float64(active*2), 15) + math.Min(float64(transitions*3), 15)
	return math.Min(100, score)
}

func set(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, word := range words {
		out[word] = struct{}{}
	}
	return out
}

func bound(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
