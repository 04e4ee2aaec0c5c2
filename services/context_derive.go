package services

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/model"
)

// ContextDeriver builds the query-relevant metadata for a challenge from its
// canonical record. The cache treats derivation as a pure function, so a
// different vocabulary can be swapped in without touching cache logic.
type ContextDeriver interface {
	Derive(challenge *model.Challenge) *dto.ChallengeContext
}

// VocabularyDeriver is the default strategy: curated keyword vocabulary plus
// frequency-filtered free text, fixed category/difficulty topic tables and
// layered forbidden-pattern regexes.
type VocabularyDeriver struct{}

func NewVocabularyDeriver() *VocabularyDeriver {
	return &VocabularyDeriver{}
}

// curatedVocabulary lists terms promoted to keywords whenever they appear in
// challenge text, regardless of frequency.
var curatedVocabulary = []string{
	"algorithm", "array", "async", "authentication", "binary", "cache",
	"closure", "concurrency", "database", "encryption", "function", "graph",
	"hash", "http", "index", "inheritance", "interface", "iterator", "json",
	"linked list", "middleware", "mutex", "query", "queue", "recursion",
	"regex", "rest", "sort", "sql", "stack", "string", "struct", "thread",
	"transaction", "tree", "websocket",
}

var categoryTopics = map[string][]string{
	"algorithms":      {"complexity analysis", "data structures", "problem decomposition"},
	"web-development": {"http semantics", "api design", "client-server architecture"},
	"databases":       {"query design", "normalization", "transactions"},
	"concurrency":     {"goroutines", "synchronization", "race conditions"},
	"security":        {"input validation", "secure defaults", "least privilege"},
}

var difficultyTopics = map[string][]string{
	"beginner":     {"syntax fundamentals", "debugging basics"},
	"intermediate": {"design patterns", "testing strategies"},
	"advanced":     {"performance tuning", "architecture tradeoffs"},
}

// securityPatterns are forbidden regardless of challenge category.
var securityPatterns = []string{
	`(?i)rm\s+-rf\s+/`,
	`(?i)drop\s+table`,
	`(?i)eval\s*\(`,
	`(?i)exec\s*\(\s*["']`,
	`(?i)os\.system\s*\(`,
	`(?i)subprocess\.`,
	`(?i)curl\s+.*\|\s*(ba)?sh`,
}

var categoryPatterns = map[string][]string{
	"databases": {
		`(?i);\s*delete\s+from`,
		`(?i)or\s+1\s*=\s*1`,
	},
	"web-development": {
		`(?i)<script[^>]*>`,
		`(?i)document\.cookie`,
	},
	"security": {
		`(?i)base64\s+-d.*\|\s*(ba)?sh`,
	},
}

var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_-]{3,}`)

// freeTextStopwords filters the frequency pass; anything this common carries
// no query signal.
var freeTextStopwords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "your": true,
	"will": true, "should": true, "must": true, "have": true, "when": true,
	"then": true, "them": true, "they": true, "each": true, "into": true,
	"what": true, "which": true, "where": true, "while": true, "about": true,
	"write": true, "implement": true, "create": true, "return": true,
	"returns": true, "given": true, "using": true, "example": true,
	"challenge": true, "solution": true, "code": true, "test": true,
	"tests": true, "input": true, "output": true, "following": true,
}

const freeTextMinFrequency = 3

func (d *VocabularyDeriver) Derive(challenge *model.Challenge) *dto.ChallengeContext {
	text := strings.ToLower(challenge.Title + " " + challenge.Description + " " + challenge.Instructions)

	return &dto.ChallengeContext{
		ChallengeID:        challenge.ID,
		Title:              challenge.Title,
		Category:           challenge.Category,
		Difficulty:         challenge.Difficulty,
		Keywords:           d.extractKeywords(text),
		AllowedTopics:      d.allowedTopics(challenge.Category, challenge.Difficulty),
		ForbiddenPatterns:  d.forbiddenPatterns(challenge),
		TargetMetrics:      decodeStringMap(challenge.TargetMetrics),
		LearningObjectives: decodeStringSlice(challenge.LearningGoals),
		TechStack:          decodeStringSlice(challenge.TechStack),
		DerivedAt:          time.Now(),
	}
}

func (d *VocabularyDeriver) extractKeywords(text string) []string {
	seen := make(map[string]bool)
	var keywords []string

	for _, term := range curatedVocabulary {
		if strings.Contains(text, term) && !seen[term] {
			seen[term] = true
			keywords = append(keywords, term)
		}
	}

	// Frequency-filtered free text: repeated domain words the vocabulary
	// does not know about.
	freq := make(map[string]int)
	for _, word := range wordPattern.FindAllString(text, -1) {
		if !freeTextStopwords[word] {
			freq[word]++
		}
	}

	var frequent []string
	for word, count := range freq {
		if count >= freeTextMinFrequency && !seen[word] {
			frequent = append(frequent, word)
		}
	}
	sort.Strings(frequent)
	keywords = append(keywords, frequent...)

	if keywords == nil {
		keywords = []string{}
	}
	return keywords
}

func (d *VocabularyDeriver) allowedTopics(category, difficulty string) []string {
	topics := append([]string{}, categoryTopics[category]...)
	topics = append(topics, difficultyTopics[difficulty]...)
	return topics
}

func (d *VocabularyDeriver) forbiddenPatterns(challenge *model.Challenge) []string {
	patterns := append([]string{}, securityPatterns...)
	patterns = append(patterns, categoryPatterns[challenge.Category]...)
	patterns = append(patterns, decodeStringSlice(challenge.DetectionPatterns)...)
	return patterns
}

func decodeStringSlice(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}

func decodeStringMap(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := map[string]string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
