package homeassistant

import (
	"strings"
)

// Fuzzy name resolution maps human phrases ("kitchen lights", "the
// coffee maker") onto entities. Both sides are normalized the same way;
// an entity is a candidate iff every token of the filter occurs as a
// substring of the entity's normalized name+ID text.
//
// Short filters express room-level intent and select every match; long
// filters (three or more words) express device-level intent and select
// the single best match. Conflating the two either over-acts or
// under-acts, so the word-count split is part of the observable
// contract.

// stopWords are filler tokens ignored during matching.
var stopWords = map[string]bool{
	"and": true,
	"or":  true,
	"the": true,
}

// Normalize lowercases, converts underscores to spaces, strips
// punctuation, collapses whitespace, and removes a trailing plural "s"
// ("lamps" matches "lamp").
func Normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteByte(' ')
		}
	}

	s = strings.Join(strings.Fields(b.String()), " ")
	if len(s) > 3 && strings.HasSuffix(s, "s") {
		s = s[:len(s)-1]
	}
	return s
}

// filterTokens returns the meaningful tokens of a normalized filter,
// dropping stop words and bare numbers.
func filterTokens(normalized string) []string {
	fields := strings.Fields(normalized)
	tokens := fields[:0]
	for _, f := range fields {
		if stopWords[f] || isDigits(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// matchesFilter reports whether every token of the normalized filter
// occurs as a substring of the entity's normalized search text.
func matchesFilter(tokens []string, searchText string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !strings.Contains(searchText, tok) {
			return false
		}
	}
	return true
}

// searchText builds the normalized haystack for an entity.
func searchText(s *State) string {
	return Normalize(s.FriendlyName()) + " " + Normalize(s.EntityID)
}

// ResolveByName filters entities against a human name filter. The
// returned slice preserves input order for broad matches; for specific
// filters (three or more words) it contains the single best match,
// scored by exact-token overlap with the friendly name, ties broken by
// shorter entity ID.
func ResolveByName(nameFilter string, entities []State) []State {
	normalized := Normalize(nameFilter)
	tokens := filterTokens(normalized)

	var matches []State
	for i := range entities {
		if matchesFilter(tokens, searchText(&entities[i])) {
			matches = append(matches, entities[i])
		}
	}

	if len(matches) == 0 {
		return nil
	}

	// Raw word count decides room-level vs device-level intent.
	if len(strings.Fields(nameFilter)) < 3 {
		return matches
	}

	best := matches[0]
	bestScore := exactTokenScore(tokens, &best)
	for i := 1; i < len(matches); i++ {
		score := exactTokenScore(tokens, &matches[i])
		if score > bestScore || (score == bestScore && len(matches[i].EntityID) < len(best.EntityID)) {
			best = matches[i]
			bestScore = score
		}
	}
	return []State{best}
}

// exactTokenScore counts filter tokens that appear verbatim among the
// friendly-name tokens.
func exactTokenScore(tokens []string, s *State) int {
	nameTokens := strings.Fields(Normalize(s.FriendlyName()))
	set := make(map[string]bool, len(nameTokens))
	for _, t := range nameTokens {
		set[t] = true
	}
	score := 0
	for _, t := range tokens {
		if set[t] {
			score++
		}
	}
	return score
}
