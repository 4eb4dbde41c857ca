package trainingdata

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"go.uber.org/zap"

	"github.com/rovo/nbstats/category"
)

const (
	persistedFormat  = "nbstats/training-data"
	persistedVersion = 1
)

type tempFile interface {
	io.Writer
	Sync() error
	Close() error
	Name() string
}

var (
	errNilWriter            = errors.New("writer is nil")
	errNilReader            = errors.New("reader is nil")
	errPathNotAbsolute      = errors.New("path must be absolute")
	errUnknownFormat        = errors.New("not a training data file")
	errUnsupportedVersion   = errors.New("unsupported training data version")
	errKeyTypeMismatch      = errors.New("training data was written for different key types")
	errNilEntry             = errors.New("nil category entry in persisted data")
	errInvalidSampleCount   = errors.New("invalid sample count in persisted data")
	errInvalidFeatureCount  = errors.New("invalid feature count in persisted data")
	errFeatureTotalMismatch = errors.New("distinct feature total does not match persisted categories")
	defaultModelFilePath    = filepath.Join(os.TempDir(), "nbstats.gob")
	createTemp              = func(dir, pattern string) (tempFile, error) { return os.CreateTemp(dir, pattern) }
	readFile                = os.ReadFile
	renameFile              = os.Rename
	removeFile              = os.Remove
)

type persistedEntry[F comparable] struct {
	SampleCount int64
	Features    map[F]int
}

type persistedState[F comparable, C comparable] struct {
	Format        string
	Version       int
	FeatureType   string
	CategoryType  string
	Categories    map[C]*persistedEntry[F]
	TotalFeatures int64
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

// Save writes the store to w using gob encoding.
func (s *Store[F, C]) Save(w io.Writer) error {
	if w == nil {
		return errNilWriter
	}

	s.mu.RLock()
	state := persistedState[F, C]{
		Format:        persistedFormat,
		Version:       persistedVersion,
		FeatureType:   typeName[F](),
		CategoryType:  typeName[C](),
		Categories:    make(map[C]*persistedEntry[F], s.categories.Len()),
		TotalFeatures: s.distinct.get(s.countDistinctFeatures),
	}
	s.categories.Each(func(name C, entry *category.Entry[F]) {
		state.Categories[name] = &persistedEntry[F]{
			SampleCount: entry.SampleCount(),
			Features:    entry.Features(),
		}
	})
	s.mu.RUnlock()

	if err := gob.NewEncoder(w).Encode(state); err != nil {
		return fmt.Errorf("encode training data: %w", err)
	}

	return nil
}

// Load reads gob-encoded training data from r and replaces the store's state.
// The store is left untouched when any error is returned.
func (s *Store[F, C]) Load(r io.Reader) error {
	if r == nil {
		return errNilReader
	}

	var state persistedState[F, C]
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return fmt.Errorf("decode training data: %w", err)
	}

	cats, err := restoreState(state)
	if err != nil {
		return err
	}

	s.replace(cats)
	return nil
}

func restoreState[F comparable, C comparable](state persistedState[F, C]) (*category.Categories[F, C], error) {
	if state.Format != persistedFormat {
		return nil, fmt.Errorf("%w: format %q", errUnknownFormat, state.Format)
	}
	if state.Version != persistedVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupportedVersion, state.Version)
	}
	if state.FeatureType != typeName[F]() || state.CategoryType != typeName[C]() {
		return nil, fmt.Errorf("%w: got [%s, %s], want [%s, %s]", errKeyTypeMismatch,
			state.FeatureType, state.CategoryType, typeName[F](), typeName[C]())
	}

	cats := category.NewCategories[F, C]()
	for name, entry := range state.Categories {
		if entry == nil {
			return nil, fmt.Errorf("%w for %v", errNilEntry, name)
		}
		if entry.SampleCount < 0 {
			return nil, fmt.Errorf("%w for %v: %d", errInvalidSampleCount, name, entry.SampleCount)
		}
		for feature, count := range entry.Features {
			if count <= 0 {
				return nil, fmt.Errorf("%w for %v feature %v: %d", errInvalidFeatureCount, name, feature, count)
			}
		}
		cats.Add(name, category.NewEntryFrom(entry.SampleCount, entry.Features))
	}

	if got := int64(len(distinctFeatures(cats))); got != state.TotalFeatures {
		return nil, fmt.Errorf("%w: persisted=%d actual=%d", errFeatureTotalMismatch, state.TotalFeatures, got)
	}

	return cats, nil
}

// SaveToFile writes the store to path atomically.
func (s *Store[F, C]) SaveToFile(path string) error {
	path = resolveModelPath(path)
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", errPathNotAbsolute, path)
	}

	dir := filepath.Dir(path)
	tempFile, err := createTemp(dir, ".nbstats-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer removeFile(tempPath)

	digest := sha256.New()
	if err := s.Save(io.MultiWriter(tempFile, digest)); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	var sum [sha256.Size]byte
	copy(sum[:], digest.Sum(nil))
	// Recorded before the rename so a watcher never observes the new file
	// without its digest.
	undo := s.persisted.record(path, sum)
	if err := renameFile(tempPath, path); err != nil {
		undo()
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// LoadFromFile reads training data from a gob-encoded file.
func (s *Store[F, C]) LoadFromFile(path string) error {
	path = resolveModelPath(path)
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", errPathNotAbsolute, path)
	}

	data, err := readFile(path)
	if err != nil {
		return fmt.Errorf("open training data file: %w", err)
	}

	if err := s.Load(bytes.NewReader(data)); err != nil {
		return err
	}
	s.persisted.record(path, sha256.Sum256(data))
	return nil
}

// PersistedBySelf reports whether the file at path still holds exactly the
// bytes this store last saved to it or loaded from it. A file that is missing,
// unreadable or was never touched by this store reports false.
func (s *Store[F, C]) PersistedBySelf(path string) bool {
	abs, err := filepath.Abs(resolveModelPath(path))
	if err != nil {
		return false
	}
	data, err := readFile(abs)
	if err != nil {
		return false
	}
	return s.persisted.matches(abs, sha256.Sum256(data))
}

// SaveData persists the store to the file name inside directory. Failures are
// logged and returned; the store itself is never affected.
func (s *Store[F, C]) SaveData(directory, name string) error {
	dir, err := filepath.Abs(directory)
	if err != nil {
		s.logger.Error("Error while persisting training data", zap.String("directory", directory), zap.Error(err))
		return fmt.Errorf("resolve directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := s.SaveToFile(path); err != nil {
		s.logger.Error("Error while persisting training data", zap.String("path", path), zap.Error(err))
		return err
	}

	s.logger.Info("Persisted training data", zap.String("path", path))
	return nil
}

// LoadData replaces the store with the training data found at path. It
// returns false and leaves the store untouched if the file cannot be read or
// does not hold training data for this store's key types.
func (s *Store[F, C]) LoadData(path string) bool {
	abs, err := filepath.Abs(resolveModelPath(path))
	if err != nil {
		s.logger.Error("Error while loading training data", zap.String("path", path), zap.Error(err))
		return false
	}

	if err := s.LoadFromFile(abs); err != nil {
		s.logger.Error("Error while loading training data", zap.String("path", abs), zap.Error(err))
		return false
	}

	s.logger.Info("Loaded training data",
		zap.String("path", abs),
		zap.Int("categories", s.NumberOfCategories()))
	return true
}

func resolveModelPath(path string) string {
	if path == "" {
		return defaultModelFilePath
	}
	return path
}
