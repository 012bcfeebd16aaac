package store

import (
	"strings"
	"unicode"
)

// Match ranks, best first.
const (
	matchNone = iota
	matchWords
	matchSubstring
	matchPrefix
	matchExact
)

// BestMatch returns the index of the candidate that best matches query, or -1.
// Comparison is case-insensitive. An exact match beats a prefix match, which
// beats a substring match, which beats word overlap. Ties keep the earliest
// candidate, except that more shared words win among word-overlap matches.
func BestMatch(query string, candidates []string) int {
	q := fold(query)
	if q == "" {
		return -1
	}
	qWords := words(q)

	best, bestRank, bestOverlap := -1, matchNone, 0
	for i, c := range candidates {
		rank, overlap := score(q, qWords, fold(c))
		if rank == matchNone {
			continue
		}
		if rank > bestRank || (rank == bestRank && rank == matchWords && overlap > bestOverlap) {
			best, bestRank, bestOverlap = i, rank, overlap
		}
	}
	return best
}

func score(q string, qWords []string, c string) (int, int) {
	switch {
	case c == "":
		return matchNone, 0
	case c == q:
		return matchExact, 0
	case strings.HasPrefix(c, q):
		return matchPrefix, 0
	case strings.Contains(c, q) || strings.Contains(q, c):
		return matchSubstring, 0
	}
	cWords := make(map[string]bool)
	for _, w := range words(c) {
		cWords[w] = true
	}
	overlap := 0
	for _, w := range qWords {
		if cWords[w] {
			overlap++
		}
	}
	if overlap == 0 {
		return matchNone, 0
	}
	return matchWords, overlap
}

func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// words splits on anything that is not a letter or digit and drops short
// filler words.
func words(s string) []string {
	raw := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := raw[:0]
	for _, w := range raw {
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "project": true, "task": true,
}
