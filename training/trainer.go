// Package training feeds text samples into a training data store.
package training

import (
	"context"

	"github.com/rovo/nbstats/tokenize"
	"github.com/rovo/nbstats/trainingdata"
)

// Sample is one training observation assigned to a single category.
type Sample[C comparable] struct {
	Category C
	Text     string
}

// Trainer tokenizes samples and records them in a store.
type Trainer[C comparable] struct {
	store     *trainingdata.Store[string, C]
	tokenizer *tokenize.Tokenizer
}

// NewTrainer returns a Trainer writing into store.
func NewTrainer[C comparable](store *trainingdata.Store[string, C], tokenizer *tokenize.Tokenizer) *Trainer[C] {
	return &Trainer[C]{
		store:     store,
		tokenizer: tokenizer,
	}
}

// Store returns the store the trainer writes into.
func (t *Trainer[C]) Store() *trainingdata.Store[string, C] {
	return t.store
}

// Train records text as one sample of category and returns how many feature
// occurrences were counted.
func (t *Trainer[C]) Train(category C, text string) int {
	tokens := t.tokenizer.Tokenize(text)

	t.store.IncrementNumberOfSamplesForCategory(category)
	for _, token := range tokens {
		t.store.IncrementFeature(token, category)
	}

	return len(tokens)
}

// TrainBatch trains every sample in order. It stops between samples when ctx
// is done and returns the number of samples trained alongside ctx.Err().
func (t *Trainer[C]) TrainBatch(ctx context.Context, samples []Sample[C]) (int, error) {
	for i, sample := range samples {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		t.Train(sample.Category, sample.Text)
	}
	return len(samples), nil
}
