// Package moderation censors forbidden words in message text before it is committed.
package moderation

import (
	"chat-core/errors"
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Moderator matches normalized text against an Aho-Corasick automaton.
// Normalization lowercases, undoes common leet substitutions and skips
// punctuation, spaces and symbols, so "B.4.d.g.€r" still matches "badger".
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

// normalizedText keeps, for every normalized rune, its index in the original text.
type normalizedText struct {
	runes   []rune
	origIdx []int
}

func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	patterns := lo.FilterMap(censoredWords, func(word string, _ int) ([]rune, bool) {
		pattern := normalize(word).runes
		return pattern, len(pattern) > 0
	})
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}
	if skipped := len(censoredWords) - len(patterns); skipped > 0 {
		log.Debug("Censored words made only of noise are ignored", "count", skipped)
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, censoredChar: censoredChar, log: log}, nil
}

// Censor replaces every original rune covered by a match, noise included,
// and returns the matched dictionary words in order of appearance.
func (m *Moderator) Censor(original string) (string, []string) {
	text := normalize(original)
	if len(text.runes) == 0 {
		return original, nil
	}
	terms := m.matcher.MultiPatternSearch(text.runes, false)
	if len(terms) == 0 {
		return original, nil
	}

	censored := []rune(original)
	var found []string
	for _, term := range terms {
		end := term.Pos + len(term.Word)
		if term.Pos < 0 || end > len(text.origIdx) {
			continue
		}
		for i := text.origIdx[term.Pos]; i <= text.origIdx[end-1]; i++ {
			censored[i] = m.censoredChar
		}
		found = append(found, string(term.Word))
	}
	return string(censored), found
}

func normalize(input string) normalizedText {
	original := []rune(input)
	text := normalizedText{
		runes:   make([]rune, 0, len(original)),
		origIdx: make([]int, 0, len(original)),
	}
	for i, r := range original {
		r = unleet(r)
		if isNoise(r) {
			continue
		}
		text.runes = append(text.runes, unicode.ToLower(r))
		text.origIdx = append(text.origIdx, i)
	}
	return text
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
