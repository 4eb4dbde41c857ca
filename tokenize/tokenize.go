// Package tokenize turns raw sample text into the features counted by the
// training store.
package tokenize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultLanguage is the stemmer language used when none is configured.
const DefaultLanguage = "english"

var supportedLanguages = []string{
	"english",
	"french",
	"hungarian",
	"norwegian",
	"russian",
	"spanish",
	"swedish",
}

var errUnsupportedLanguage = errors.New("unsupported stemmer language")

// Tokenizer splits text into normalized, optionally stemmed tokens.
type Tokenizer struct {
	language  string
	stem      bool
	minLength int
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithLanguage selects the stemmer language.
func WithLanguage(language string) Option {
	return func(t *Tokenizer) {
		t.language = strings.ToLower(strings.TrimSpace(language))
	}
}

// WithStemming turns stemming on or off.
func WithStemming(enabled bool) Option {
	return func(t *Tokenizer) {
		t.stem = enabled
	}
}

// WithMinLength drops tokens with fewer runes than n.
func WithMinLength(n int) Option {
	return func(t *Tokenizer) {
		t.minLength = n
	}
}

// New returns a Tokenizer. It fails if stemming is enabled for a language the
// stemmer does not know.
func New(opts ...Option) (*Tokenizer, error) {
	t := &Tokenizer{
		language:  DefaultLanguage,
		stem:      true,
		minLength: 1,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.stem && !IsSupportedLanguage(t.language) {
		return nil, fmt.Errorf("%w: %q", errUnsupportedLanguage, t.language)
	}

	return t, nil
}

// SupportedLanguages lists the languages the stemmer accepts.
func SupportedLanguages() []string {
	return append([]string(nil), supportedLanguages...)
}

// IsSupportedLanguage reports whether language can be stemmed.
func IsSupportedLanguage(language string) bool {
	for _, l := range supportedLanguages {
		if l == language {
			return true
		}
	}
	return false
}

// Language returns the configured stemmer language.
func (t *Tokenizer) Language() string {
	return t.language
}

// Tokenize normalizes text to NFKC, folds case, splits on anything that is not
// a letter or digit and stems the result.
func (t *Tokenizer) Tokenize(text string) []string {
	// A Caser may keep state between calls, so each call gets its own.
	normalized := cases.Fold().String(norm.NFKC.String(text))
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) < t.minLength {
			continue
		}
		tokens = append(tokens, t.stemWord(field))
	}
	return tokens
}

// Normalize maps a single query term onto the feature Tokenize records for
// it, so "Buying" looks up "buy". ok is false unless term yields exactly one
// feature.
func (t *Tokenizer) Normalize(term string) (feature string, ok bool) {
	tokens := t.Tokenize(term)
	if len(tokens) != 1 {
		return "", false
	}
	return tokens[0], true
}

func (t *Tokenizer) stemWord(word string) string {
	if !t.stem {
		return word
	}
	stemmed, err := snowball.Stem(word, t.language, false)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}
