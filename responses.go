package main

import "github.com/rovo/nbstats/category"

// InfoResponse summarizes the training store.
type InfoResponse struct {
	Categories         []string
	NumberOfCategories int
	TotalSamples       int64
	DistinctFeatures   int64
	SVMType            string
	Language           string
}

// NewInfoResponse Gets an assembled instance of InfoResponse
func NewInfoResponse(c *StatsAPI) *InfoResponse {
	return &InfoResponse{
		Categories:         c.sortedCategories(),
		NumberOfCategories: c.store.NumberOfCategories(),
		TotalSamples:       c.store.TotalNumberOfSamples(),
		DistinctFeatures:   c.store.TotalNumberOfFeatures(),
		SVMType:            c.svmType.String(),
		Language:           c.tokenizer.Language(),
	}
}

// TrainingResponse is returned after a sample was recorded.
type TrainingResponse struct {
	Success    bool
	Category   string
	Features   int
	Categories []string
}

// SamplesResponse reports the sample count of one category.
type SamplesResponse struct {
	Category string
	Known    bool
	Samples  int64
}

// CountResponse reports feature occurrences. An empty Category means all categories.
type CountResponse struct {
	Feature  string
	Category string `json:",omitempty"`
	Count    int64
}

// CategoryResponse reports the counters of one category.
type CategoryResponse struct {
	Category         string
	Samples          int64
	DistinctFeatures int
	TotalOccurrences int64
}

// NewCategoryResponse builds a CategoryResponse from a copy of the entry.
func NewCategoryResponse(name string, entry *category.Entry[string]) *CategoryResponse {
	return &CategoryResponse{
		Category:         name,
		Samples:          entry.SampleCount(),
		DistinctFeatures: entry.DistinctFeatures(),
		TotalOccurrences: entry.TotalOccurrences(),
	}
}

// PersistenceResponse reports the outcome of a save, load, snapshot or restore.
type PersistenceResponse struct {
	Success bool
	Target  string
}

// SnapshotsResponse lists archived snapshots.
type SnapshotsResponse struct {
	Snapshots []string
}
