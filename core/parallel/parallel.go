// Package parallel fans row-range work out over the available CPU cores.
package parallel

import (
	"runtime"
	"sync"
)

// DefaultRowThreshold is the row count below which projection loops stay sequential.
const DefaultRowThreshold = 256

// Workers returns how many goroutines Parallelize would start for items.
func Workers(items int) int {
	if items <= 0 {
		return 0
	}
	n := runtime.GOMAXPROCS(0)
	if n > items {
		n = items
	}
	return n
}

// Parallelize splits [0, items) into one contiguous range per worker and
// calls fn(start, end) for each range concurrently. It returns when every
// call has finished. A panic in any worker is re-raised on the calling
// goroutine after all workers are done, so a deferred recover there sees it.
func Parallelize(items int, fn func(start, end int)) {
	workers := Workers(items)
	if workers == 0 {
		return
	}
	if workers == 1 {
		fn(0, items)
		return
	}

	chunkSize := (items + workers - 1) / workers

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		panicked bool
		value    any
	)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if !panicked {
						panicked, value = true, r
					}
					mu.Unlock()
				}
			}()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
	if panicked {
		panic(value)
	}
}

// ParallelizeWithThreshold runs fn(0, items) on the calling goroutine when
// items <= threshold and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ForEachRow calls fn once per row index, in parallel above DefaultRowThreshold.
// fn must only write to state owned by row i.
func ForEachRow(rows int, fn func(i int)) {
	ParallelizeWithThreshold(rows, DefaultRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			fn(i)
		}
	})
}
