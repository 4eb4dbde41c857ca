package trainingdata

import (
	"crypto/sha256"
	"path/filepath"
	"sync"
)

// fingerprints remembers the digest of the last blob a store wrote to or read
// from each file, keyed by absolute path.
type fingerprints struct {
	mu     sync.Mutex
	byPath map[string][sha256.Size]byte
}

// record stores sum for path and returns a func that restores the previous
// state.
func (f *fingerprints) record(path string, sum [sha256.Size]byte) (undo func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.byPath == nil {
		f.byPath = make(map[string][sha256.Size]byte)
	}
	key := filepath.Clean(path)
	prev, hadPrev := f.byPath[key]
	f.byPath[key] = sum

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if hadPrev {
			f.byPath[key] = prev
		} else {
			delete(f.byPath, key)
		}
	}
}

func (f *fingerprints) matches(path string, sum [sha256.Size]byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	known, ok := f.byPath[filepath.Clean(path)]
	return ok && known == sum
}
