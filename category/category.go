package category

// Entry holds the counters recorded for a single category: how many samples
// were attributed to it and how often each feature occurred in those samples.
//
// F is the feature type. Two features are the same key when they compare
// equal with ==, so identity is by value, never by reference.
type Entry[F comparable] struct {
	sampleCount int64
	features    map[F]int
}

// NewEntry returns an empty entry with a sample count of zero.
func NewEntry[F comparable]() *Entry[F] {
	return &Entry[F]{
		features: make(map[F]int),
	}
}

// NewEntryWithFeature returns an entry seeded with a single occurrence of feature.
// The sample count starts at zero.
func NewEntryWithFeature[F comparable](feature F) *Entry[F] {
	entry := NewEntry[F]()
	entry.features[feature] = 1
	return entry
}

// NewEntryFrom rebuilds an entry from previously recorded state. The feature
// map is copied.
func NewEntryFrom[F comparable](sampleCount int64, features map[F]int) *Entry[F] {
	entry := &Entry[F]{
		sampleCount: sampleCount,
		features:    make(map[F]int, len(features)),
	}
	for feature, count := range features {
		entry.features[feature] = count
	}
	return entry
}

// IncrementSampleCount adds one sample to the entry and returns it.
func (e *Entry[F]) IncrementSampleCount() *Entry[F] {
	e.sampleCount++
	return e
}

// IncrementFeature adds one occurrence of feature. It reports whether the
// feature was new to this entry.
func (e *Entry[F]) IncrementFeature(feature F) bool {
	count, ok := e.features[feature]
	e.features[feature] = count + 1
	return !ok
}

// SampleCount returns the number of samples attributed to this entry.
func (e *Entry[F]) SampleCount() int64 {
	return e.sampleCount
}

// FeatureCount returns the occurrences of feature, or 0 if it was never seen.
func (e *Entry[F]) FeatureCount(feature F) int {
	return e.features[feature]
}

// DistinctFeatures returns the number of different features in this entry.
func (e *Entry[F]) DistinctFeatures() int {
	return len(e.features)
}

// TotalOccurrences returns the sum of all feature counts.
func (e *Entry[F]) TotalOccurrences() int64 {
	var sum int64
	for _, count := range e.features {
		sum += int64(count)
	}
	return sum
}

// Features returns a copy of the feature counts.
func (e *Entry[F]) Features() map[F]int {
	out := make(map[F]int, len(e.features))
	for feature, count := range e.features {
		out[feature] = count
	}
	return out
}

// EachFeature calls fn for every recorded feature without copying the map.
// fn must not retain or mutate the entry.
func (e *Entry[F]) EachFeature(fn func(feature F, count int)) {
	for feature, count := range e.features {
		fn(feature, count)
	}
}

// Clone returns a deep copy of the entry.
func (e *Entry[F]) Clone() *Entry[F] {
	return NewEntryFrom(e.sampleCount, e.features)
}
