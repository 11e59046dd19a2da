// Package wordbank owns the immutable vocabulary and serves randomized,
// filtered draws from it.
package wordbank

import (
	"math/rand"
	"strings"

	"github.com/playsketch/sketchparty/internal/domain"
)

// Bank partitions the vocabulary by category and difficulty. All accessors
// return defensive copies; the bank itself never changes after construction.
type Bank struct {
	words        []domain.Word
	byCategory   map[string][]domain.Word
	byDifficulty map[domain.Difficulty][]domain.Word

	intn func(n int) int
}

// Option configures a Bank.
type Option func(*Bank)

// WithRand replaces the random source, mainly for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(b *Bank) {
		b.intn = r.Intn
	}
}

// NewBank indexes the given words. Words with empty text are dropped; the
// caller is expected to have validated entries at load time.
func NewBank(words []domain.Word, opts ...Option) *Bank {
	b := &Bank{
		byCategory:   make(map[string][]domain.Word),
		byDifficulty: make(map[domain.Difficulty][]domain.Word),
		intn:         rand.Intn,
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}

		b.words = append(b.words, w)
		cat := strings.ToLower(w.Category)
		b.byCategory[cat] = append(b.byCategory[cat], w)
		diff := domain.Difficulty(strings.ToLower(string(w.Difficulty)))
		b.byDifficulty[diff] = append(b.byDifficulty[diff], w)
	}

	return b
}

// Len returns the number of words in the bank.
func (b *Bank) Len() int { return len(b.words) }

// Words returns a copy of the full vocabulary.
func (b *Bank) Words() []domain.Word {
	return copyWords(b.words)
}

// RandomWord draws a uniform-random word, excluding the given text (used to
// avoid repeating the previous round's word). Returns false when the bank is
// empty or the exclusion leaves nothing.
func (b *Bank) RandomWord(exclude string) (domain.Word, bool) {
	return b.pick(b.words, exclude)
}

// RandomWordByDifficulty draws a uniform-random word of the given difficulty.
func (b *Bank) RandomWordByDifficulty(d domain.Difficulty, exclude string) (domain.Word, bool) {
	return b.pick(b.byDifficulty[domain.Difficulty(strings.ToLower(string(d)))], exclude)
}

func (b *Bank) pick(pool []domain.Word, exclude string) (domain.Word, bool) {
	if exclude != "" {
		filtered := make([]domain.Word, 0, len(pool))
		for _, w := range pool {
			if !strings.EqualFold(w.Text, exclude) {
				filtered = append(filtered, w)
			}
		}
		pool = filtered
	}

	if len(pool) == 0 {
		return domain.Word{}, false
	}
	return pool[b.intn(len(pool))], true
}

// WordsByCategory returns all words of a category, case-insensitively.
func (b *Bank) WordsByCategory(category string) []domain.Word {
	return copyWords(b.byCategory[strings.ToLower(category)])
}

// WordsByDifficulty returns all words of a difficulty, case-insensitively.
func (b *Bank) WordsByDifficulty(d domain.Difficulty) []domain.Word {
	return copyWords(b.byDifficulty[domain.Difficulty(strings.ToLower(string(d)))])
}

// Search returns words whose text or hint contains the keyword,
// case-insensitively.
func (b *Bank) Search(keyword string) []domain.Word {
	keyword = strings.ToLower(keyword)

	var out []domain.Word
	for _, w := range b.words {
		if strings.Contains(strings.ToLower(w.Text), keyword) ||
			strings.Contains(strings.ToLower(w.Hint), keyword) {
			out = append(out, w)
		}
	}
	return out
}

// Categories lists the known categories.
func (b *Bank) Categories() []string {
	out := make([]string, 0, len(b.byCategory))
	for c := range b.byCategory {
		out = append(out, c)
	}
	return out
}

// Difficulties lists the difficulties present in the bank.
func (b *Bank) Difficulties() []domain.Difficulty {
	out := make([]domain.Difficulty, 0, len(b.byDifficulty))
	for d := range b.byDifficulty {
		out = append(out, d)
	}
	return out
}

func copyWords(in []domain.Word) []domain.Word {
	out := make([]domain.Word, len(in))
	copy(out, in)
	return out
}
