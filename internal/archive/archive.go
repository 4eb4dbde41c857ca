// Package archive keeps named snapshots of encoded training data in a bbolt
// database. Writes are transactional, so a crash mid-write leaves earlier
// snapshots intact.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSnapshots = []byte("snapshots")

var (
	errEmptyName = errors.New("snapshot name must not be empty")
	// ErrNotFound is returned when a snapshot does not exist.
	ErrNotFound = errors.New("snapshot not found")
)

// Encoder writes a snapshot. trainingdata.Store satisfies it.
type Encoder interface {
	Save(w io.Writer) error
}

// Decoder replaces its state from a snapshot. trainingdata.Store satisfies it.
type Decoder interface {
	Load(r io.Reader) error
}

// Archive stores snapshots keyed by name.
type Archive struct {
	db *bolt.DB
}

// Open opens (or creates) the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Put encodes src and stores it under name, replacing any previous snapshot.
func (a *Archive) Put(name string, src Encoder) error {
	if name == "" {
		return errEmptyName
	}

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		return fmt.Errorf("encode snapshot %q: %w", name, err)
	}

	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(name), buf.Bytes())
	})
}

// Restore loads the snapshot stored under name into dst.
func (a *Archive) Restore(name string, dst Decoder) error {
	var blob []byte

	err := a.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		// bbolt slices are only valid within the transaction
		blob = make([]byte, len(v))
		copy(blob, v)
		return nil
	})
	if err != nil {
		return err
	}

	if err := dst.Load(bytes.NewReader(blob)); err != nil {
		return fmt.Errorf("restore snapshot %q: %w", name, err)
	}
	return nil
}

// List returns the snapshot names in sorted order.
func (a *Archive) List() ([]string, error) {
	var names []string
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the snapshot stored under name. Deleting a missing snapshot
// is not an error.
func (a *Archive) Delete(name string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(name))
	})
}
