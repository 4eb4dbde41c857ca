// Package trainingdata accumulates the per-category statistics a naive Bayes
// classifier is trained on: how many samples belong to each category and how
// often each feature occurs within the samples of a category.
//
// A Store only counts. Turning counts into probabilities is left to the caller.
package trainingdata

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rovo/nbstats/category"
)

// Store records sample and feature counts per category.
//
// F is the feature type and C the category type. Keys are compared with ==,
// so two values that are equal denote the same feature or category.
//
// A Store is safe for concurrent use. Increments are serialized behind a
// single writer lock while queries may run in parallel.
type Store[F comparable, C comparable] struct {
	mu         sync.RWMutex
	categories *category.Categories[F, C]
	distinct   distinctCount
	persisted  fingerprints

	logger               *zap.Logger
	legacySampleCounting bool
}

type options struct {
	logger               *zap.Logger
	legacySampleCounting bool
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the logger used to report persistence outcomes.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLegacySampleCounting keeps the historical behavior where the first
// sample recorded for an unknown category creates the category with a sample
// count of zero instead of one. Only needed to reproduce counts produced by
// older trainers.
func WithLegacySampleCounting() Option {
	return func(o *options) {
		o.legacySampleCounting = true
	}
}

// New returns an empty Store.
func New[F comparable, C comparable](opts ...Option) *Store[F, C] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store[F, C]{
		categories:           category.NewCategories[F, C](),
		logger:               o.logger,
		legacySampleCounting: o.legacySampleCounting,
	}
}

// IncrementFeature records one occurrence of feature in cat, creating the
// category on first use.
func (s *Store[F, C]) IncrementFeature(feature F, cat C) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.categories.Lookup(cat); ok {
		if entry.IncrementFeature(feature) {
			s.distinct.invalidate()
		}
		return
	}

	s.categories.Add(cat, category.NewEntryWithFeature(feature))
	s.distinct.invalidate()
}

// IncrementNumberOfSamplesForCategory records one more sample for cat,
// creating the category on first use. The first call leaves the count at 1.
// Older stores created the category at 0 and so undercounted every category
// by one; WithLegacySampleCounting keeps that behavior for models that must
// stay comparable with such data.
func (s *Store[F, C]) IncrementNumberOfSamplesForCategory(cat C) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.categories.Lookup(cat); ok {
		entry.IncrementSampleCount()
		return
	}

	entry := category.NewEntry[F]()
	if !s.legacySampleCounting {
		entry.IncrementSampleCount()
	}
	s.categories.Add(cat, entry)
}

// NumberOfCategories returns how many categories are known.
func (s *Store[F, C]) NumberOfCategories() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories.Len()
}

// TotalNumberOfFeatures returns the number of distinct features seen across
// all categories. A feature present in several categories counts once.
func (s *Store[F, C]) TotalNumberOfFeatures() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distinct.get(s.countDistinctFeatures)
}

// countDistinctFeatures must be called with s.mu held.
func (s *Store[F, C]) countDistinctFeatures() int64 {
	return int64(len(distinctFeatures(s.categories)))
}

func distinctFeatures[F comparable, C comparable](cats *category.Categories[F, C]) map[F]struct{} {
	seen := make(map[F]struct{})
	cats.Each(func(_ C, entry *category.Entry[F]) {
		entry.EachFeature(func(feature F, _ int) {
			seen[feature] = struct{}{}
		})
	})
	return seen
}

// NumberOfSamplesForCategory returns the sample count of cat, or 0 if the
// category is unknown.
func (s *Store[F, C]) NumberOfSamplesForCategory(cat C) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.categories.Lookup(cat); ok {
		return entry.SampleCount()
	}
	return 0
}

// TotalNumberOfSamples returns the sum of the sample counts of all categories.
func (s *Store[F, C]) TotalNumberOfSamples() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	s.categories.Each(func(_ C, entry *category.Entry[F]) {
		sum += entry.SampleCount()
	})
	return sum
}

// FeatureCount returns how often feature occurred in cat. Unknown features and
// categories yield 0.
func (s *Store[F, C]) FeatureCount(feature F, cat C) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.categories.Lookup(cat); ok {
		return entry.FeatureCount(feature)
	}
	return 0
}

// TotalFeatureCount returns how often feature occurred across all categories.
func (s *Store[F, C]) TotalFeatureCount(feature F) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	s.categories.Each(func(_ C, entry *category.Entry[F]) {
		sum += int64(entry.FeatureCount(feature))
	})
	return sum
}

// ContainsCategory reports whether cat has been recorded.
func (s *Store[F, C]) ContainsCategory(cat C) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories.Contains(cat)
}

// Categories returns a snapshot of the known category identifiers in no
// particular order. Changing the slice does not affect the store.
func (s *Store[F, C]) Categories() []C {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories.Names()
}

// Entry returns a copy of the counters recorded for cat.
func (s *Store[F, C]) Entry(cat C) (*category.Entry[F], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.categories.Lookup(cat)
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Reset drops every category.
func (s *Store[F, C]) Reset() {
	s.replace(category.NewCategories[F, C]())
}

// replace swaps in a new category set. Readers observe either the old or the
// new set, never a mix.
func (s *Store[F, C]) replace(cats *category.Categories[F, C]) {
	s.mu.Lock()
	s.categories = cats
	s.distinct.invalidate()
	s.mu.Unlock()
}
