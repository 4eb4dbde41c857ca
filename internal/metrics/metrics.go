// Package metrics exposes Prometheus collectors for training and persistence.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesTrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nbstats_samples_trained_total",
			Help: "Total number of samples recorded through the API",
		},
	)

	FeaturesTrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nbstats_features_trained_total",
			Help: "Total number of feature occurrences recorded through the API",
		},
	)

	PersistenceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbstats_persistence_operations_total",
			Help: "Save and load operations by outcome",
		},
		[]string{"operation", "result"}, // operation: save, load, reload, snapshot, restore, delete
	)

	Categories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbstats_categories",
			Help: "Number of categories in the training store",
		},
	)

	Samples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbstats_samples",
			Help: "Total number of samples in the training store",
		},
	)

	DistinctFeatures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbstats_distinct_features",
			Help: "Number of distinct features across all categories",
		},
	)
)

// StoreStats is the subset of the training store the gauges report.
type StoreStats interface {
	NumberOfCategories() int
	TotalNumberOfSamples() int64
	TotalNumberOfFeatures() int64
}

// ObserveStore refreshes the store gauges.
func ObserveStore(s StoreStats) {
	Categories.Set(float64(s.NumberOfCategories()))
	Samples.Set(float64(s.TotalNumberOfSamples()))
	DistinctFeatures.Set(float64(s.TotalNumberOfFeatures()))
}

// RecordTraining counts one trained sample with the given number of features.
func RecordTraining(features int) {
	SamplesTrained.Inc()
	FeaturesTrained.Add(float64(features))
}

// RecordPersistence counts a persistence operation as success or failure.
func RecordPersistence(operation string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	PersistenceOperations.WithLabelValues(operation, result).Inc()
}
