package wordbank

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/playsketch/sketchparty/internal/domain"
)

// wordFile is the on-disk vocabulary schema: words grouped per category.
type wordFile struct {
	Categories []struct {
		Name  string `json:"name"`
		Words []struct {
			Text       string   `json:"text"`
			Difficulty string   `json:"difficulty"`
			Hint       string   `json:"hint"`
			Examples   []string `json:"examples"`
		} `json:"words"`
	} `json:"categories"`
}

// Load reads the vocabulary file and builds a bank from it. Malformed
// entries are skipped with a warning rather than failing the whole bank; a
// missing or unparseable file is fatal.
func Load(path string, opts ...Option) (*Bank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wordbank: read %s: %w", path, err)
	}

	var f wordFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("wordbank: parse %s: %w", path, err)
	}

	var words []domain.Word
	for _, cat := range f.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			slog.Warn("wordbank: skipping category without name", "file", path)
			continue
		}

		for _, e := range cat.Words {
			w, err := buildWord(cat.Name, e.Text, e.Difficulty, e.Hint, e.Examples)
			if err != nil {
				slog.Warn("wordbank: skipping invalid word entry",
					"category", cat.Name,
					"text", e.Text,
					"error", err,
				)
				continue
			}
			words = append(words, w)
		}
	}

	slog.Info("wordbank: loaded", "file", path, "words", len(words))
	return NewBank(words, opts...), nil
}

func buildWord(category, text, difficulty, hint string, examples []string) (domain.Word, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Word{}, fmt.Errorf("empty word text")
	}

	hint = strings.TrimSpace(hint)
	if hint == "" {
		hint = category
	}

	d, err := parseDifficulty(difficulty, text)
	if err != nil {
		return domain.Word{}, err
	}

	// De-duplicate examples preserving order.
	seen := make(map[string]struct{}, len(examples))
	var cleaned []string
	for _, ex := range examples {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}
		if _, ok := seen[ex]; ok {
			continue
		}
		seen[ex] = struct{}{}
		cleaned = append(cleaned, ex)
	}

	return domain.Word{
		Text:       text,
		Category:   category,
		Difficulty: d,
		Hint:       hint,
		Examples:   cleaned,
	}, nil
}

// parseDifficulty accepts an explicit difficulty, or derives one from the
// word length when the entry carries none.
func parseDifficulty(s, text string) (domain.Difficulty, error) {
	switch domain.Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case domain.DifficultyEasy:
		return domain.DifficultyEasy, nil
	case domain.DifficultyMedium:
		return domain.DifficultyMedium, nil
	case domain.DifficultyHard:
		return domain.DifficultyHard, nil
	case "":
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}

	switch n := utf8.RuneCountInString(text); {
	case n <= 2:
		return domain.DifficultyEasy, nil
	case n <= 3:
		return domain.DifficultyMedium, nil
	default:
		return domain.DifficultyHard, nil
	}
}
