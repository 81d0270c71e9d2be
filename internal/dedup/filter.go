package dedup

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// filterSet is a sliding-window bloom filter. Keys are added to current;
// lookups check current and previous. Rotating every window/2 keeps a key
// visible for at least one full window.
type filterSet struct {
	mu       sync.RWMutex
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	window   time.Duration
	capacity uint
	fpRate   float64
}

func newFilterSet(window time.Duration, capacity uint, fpRate float64) *filterSet {
	return &filterSet{
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		window:   window,
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// testAndAdd reports whether key was seen in the window, recording it if not.
func (f *filterSet) testAndAdd(key string) bool {
	data := []byte(key)

	f.mu.RLock()
	seen := f.current.Test(data) || f.previous.Test(data)
	f.mu.RUnlock()
	if seen {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Another goroutine may have added the key between the two locks.
	if f.current.Test(data) || f.previous.Test(data) {
		return true
	}
	f.current.Add(data)
	return false
}

// rotate drops previous, demotes current and starts a fresh current filter.
func (f *filterSet) rotate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previous = f.current
	f.current = bloom.NewWithEstimates(f.capacity, f.fpRate)
}
