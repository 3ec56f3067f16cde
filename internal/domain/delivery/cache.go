package delivery

import "sync"

// VersionedCache holds one value tagged with the highest config version seen.
// Readers hold a read lock for as long as they use the value, so a refresh waits for
// in-flight users to finish and never swaps the value out from under them.
type VersionedCache[T any] struct {
	mu      sync.RWMutex
	version int64
	value   T
	loaded  bool
	// OnReplace, when set, is called with the outgoing value after a refresh.
	OnReplace func(old T)
}

// Version returns the cached version and whether a value is loaded.
func (c *VersionedCache[T]) Version() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version, c.loaded
}

// Acquire returns a value built for at least version, calling build when the cached
// value is missing or older. The returned release func must be called once the caller
// is done with the value. Versions older than the cached one reuse the cached value.
func (c *VersionedCache[T]) Acquire(version int64, build func() (T, error)) (T, func(), error) {
	for {
		c.mu.RLock()
		if c.loaded && c.version >= version {
			return c.value, c.mu.RUnlock, nil
		}
		c.mu.RUnlock()

		if err := c.refresh(version, build); err != nil {
			var zero T
			return zero, func() {}, err
		}
	}
}

func (c *VersionedCache[T]) refresh(version int64, build func() (T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && c.version >= version {
		return nil
	}
	next, err := build()
	if err != nil {
		return err
	}
	old, hadOld := c.value, c.loaded
	c.value, c.version, c.loaded = next, version, true
	if hadOld && c.OnReplace != nil {
		c.OnReplace(old)
	}
	return nil
}
