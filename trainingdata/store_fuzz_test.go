package trainingdata

import (
	"bytes"
	"strings"
	"testing"
)

func FuzzStoreInvariants(f *testing.F) {
	f.Add("spam", "buy now buy now")
	f.Add("ham", "hello world")
	f.Add("tech", "")

	f.Fuzz(func(t *testing.T, category string, sample string) {
		store := New[string, string]()
		features := strings.Fields(sample)

		store.IncrementNumberOfSamplesForCategory(category)
		for _, feature := range features {
			store.IncrementFeature(feature, category)
			store.IncrementFeature(feature, category+"-other")
		}

		var samples int64
		for _, name := range store.Categories() {
			samples += store.NumberOfSamplesForCategory(name)
		}
		if got := store.TotalNumberOfSamples(); got != samples {
			t.Fatalf("total samples %d does not match per-category sum %d", got, samples)
		}

		union := make(map[string]struct{})
		for _, feature := range features {
			union[feature] = struct{}{}
			sum := int64(store.FeatureCount(feature, category)) + int64(store.FeatureCount(feature, category+"-other"))
			if got := store.TotalFeatureCount(feature); got != sum {
				t.Fatalf("feature %q total %d does not match sum %d", feature, got, sum)
			}
		}
		if got := store.TotalNumberOfFeatures(); got != int64(len(union)) {
			t.Fatalf("distinct features %d does not match union size %d", got, len(union))
		}

		var buf bytes.Buffer
		if err := store.Save(&buf); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		loaded := New[string, string]()
		if err := loaded.Load(&buf); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if loaded.TotalNumberOfFeatures() != store.TotalNumberOfFeatures() {
			t.Fatal("distinct features changed across round-trip")
		}
		if loaded.TotalNumberOfSamples() != store.TotalNumberOfSamples() {
			t.Fatal("total samples changed across round-trip")
		}
	})
}
