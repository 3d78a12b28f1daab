package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords excluded from query-term matching when scoring sentences.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "with": {}, "this": {}, "that": {}, "what": {}, "when": {},
	"why": {}, "how": {}, "can": {}, "does": {}, "did": {}, "his": {},
	"her": {}, "they": {}, "them": {}, "your": {}, "have": {}, "has": {},
	"was": {}, "were": {}, "get": {}, "about": {}, "from": {}, "into": {},
}

// ExtractSnippet picks the sentence best matching the query terms and
// grows the span with adjacent sentences while it fits within maxLen
// characters. The result never splits a word.
func ExtractSnippet(content, query string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 300
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return ""
	}

	terms := queryTerms(query)
	best, bestScore := 0, -1
	for i, sentence := range sentences {
		score := termOverlap(sentence, terms)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	snippet := sentences[best]
	if utf8.RuneCountInString(snippet) > maxLen {
		return truncateAtWord(snippet, maxLen)
	}

	// Grow outward around the best sentence, preferring forward context.
	// Lengths are counted in runes, matching the cap.
	lo, hi := best, best
	for {
		grew := false
		if hi+1 < len(sentences) && utf8.RuneCountInString(snippet)+1+utf8.RuneCountInString(sentences[hi+1]) <= maxLen {
			hi++
			snippet = snippet + " " + sentences[hi]
			grew = true
		}
		if lo > 0 && utf8.RuneCountInString(snippet)+1+utf8.RuneCountInString(sentences[lo-1]) <= maxLen {
			lo--
			snippet = sentences[lo] + " " + snippet
			grew = true
		}
		if !grew {
			break
		}
	}
	return snippet
}

// splitSentences splits text on terminal punctuation followed by
// whitespace, keeping the punctuation with the sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func queryTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		term := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len(term) < 3 {
			continue
		}
		if _, skip := stopwords[term]; skip {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

func termOverlap(sentence string, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	words := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(sentence)) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if word != "" {
			words[word] = struct{}{}
		}
	}

	count := 0
	for _, term := range terms {
		if _, ok := words[term]; ok {
			count++
		}
	}
	return count
}

// truncateAtWord cuts s at the last word boundary within maxLen runes.
func truncateAtWord(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	cut := string(runes[:maxLen])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';'
	})
}
