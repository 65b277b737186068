package tensor

import (
	"sync/atomic"

	"github.com/sourcegraph/conc"
)

// workers bounds the goroutines used by MatMul and the row-parallel kernels
// in the ops package. Values <= 1 run kernels inline.
var workers atomic.Int32

func init() {
	workers.Store(1)
}

// SetWorkers sets the maximum number of goroutines used by tensor kernels.
func SetWorkers(n int) {
	const maxInt32 = int(^uint32(0) >> 1)

	n = max(n, 1)
	n = min(n, maxInt32)

	workers.Store(int32(n))
}

// Workers returns the current kernel parallelism.
func Workers() int {
	return max(int(workers.Load()), 1)
}

// ParallelFor splits [0, n) into contiguous chunks and runs fn on each.
// Chunks never overlap, so fn may write disjoint output rows without locking.
func ParallelFor(n int, fn func(lo, hi int)) {
	parallelFor(n, Workers(), fn)
}

func parallelFor(n, maxWorkers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}

	if maxWorkers <= 1 || n == 1 {
		fn(0, n)
		return
	}

	maxWorkers = min(maxWorkers, n)
	chunk := (n + maxWorkers - 1) / maxWorkers

	var wg conc.WaitGroup

	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)

		wg.Go(func() { fn(lo, hi) })
	}

	wg.Wait()
}
