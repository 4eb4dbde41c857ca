package trainingdata

import "sync"

// distinctCount memoizes the number of distinct features across all
// categories. A zero value is a valid result, so validity is tracked separately.
type distinctCount struct {
	mu    sync.Mutex
	valid bool
	value int64
}

// get returns the memoized value, calling compute when there is none.
func (d *distinctCount) get(compute func() int64) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.valid {
		d.value = compute()
		d.valid = true
	}
	return d.value
}

// invalidate drops the memoized value so the next get recomputes it.
func (d *distinctCount) invalidate() {
	d.mu.Lock()
	d.valid = false
	d.value = 0
	d.mu.Unlock()
}

// cached reports whether a value is currently memoized.
func (d *distinctCount) cached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.valid
}
