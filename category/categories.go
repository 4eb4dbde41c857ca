package category

// Categories maps category identifiers to their entries.
type Categories[F comparable, C comparable] struct {
	entries map[C]*Entry[F]
}

// NewCategories returns an empty category set.
func NewCategories[F comparable, C comparable]() *Categories[F, C] {
	return &Categories[F, C]{
		entries: make(map[C]*Entry[F]),
	}
}

// Add stores entry under name, replacing anything already there.
func (cats *Categories[F, C]) Add(name C, entry *Entry[F]) {
	cats.entries[name] = entry
}

// Lookup returns the entry for name without creating it.
func (cats *Categories[F, C]) Lookup(name C) (*Entry[F], bool) {
	entry, ok := cats.entries[name]
	return entry, ok
}

// Contains reports whether name is a known category.
func (cats *Categories[F, C]) Contains(name C) bool {
	_, ok := cats.entries[name]
	return ok
}

// Len returns the number of categories.
func (cats *Categories[F, C]) Len() int {
	return len(cats.entries)
}

// Names returns the category identifiers in no particular order.
func (cats *Categories[F, C]) Names() []C {
	names := make([]C, 0, len(cats.entries))
	for name := range cats.entries {
		names = append(names, name)
	}
	return names
}

// Each calls fn for every category.
func (cats *Categories[F, C]) Each(fn func(name C, entry *Entry[F])) {
	for name, entry := range cats.entries {
		fn(name, entry)
	}
}
