package classify

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	goaway "github.com/TwiN/go-away"
)

// Wordlist is the censor list, loaded once at startup and never modified.
type Wordlist struct {
	terms []string
}

// LoadWordlist reads one term per line from path. Blank lines and lines
// starting with '#' are skipped. An empty path selects the library's
// built-in list.
func LoadWordlist(path string) (*Wordlist, error) {
	if path == "" {
		return &Wordlist{terms: goaway.DefaultProfanities}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wordlist: %w", err)
	}
	defer f.Close()

	var terms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, strings.ToLower(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wordlist: %w", err)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("wordlist %s has no terms", path)
	}

	return &Wordlist{terms: terms}, nil
}

// Len returns the number of terms
func (w *Wordlist) Len() int {
	return len(w.terms)
}

// TextClassifier flags text containing any wordlist term
type TextClassifier struct {
	detector *goaway.ProfanityDetector
}

// NewTextClassifier builds the matcher for wl. The result is safe for
// concurrent use.
func NewTextClassifier(wl *Wordlist) *TextClassifier {
	detector := goaway.NewProfanityDetector().WithCustomDictionary(
		wl.terms,
		goaway.DefaultFalsePositives,
		goaway.DefaultFalseNegatives,
	)
	return &TextClassifier{detector: detector}
}

// IsUnsafe reports whether text contains a listed term
func (tc *TextClassifier) IsUnsafe(text string) bool {
	return tc.detector.IsProfane(text)
}
