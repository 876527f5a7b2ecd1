// Package workerpool implements a bounded task pool for parallelizing
// pure, per-element transformations over the universe, such as
// deep-duplicating node/job/reservation arrays (spec §4.M, §5). The cycle
// driver and reservation confirmer carry a Pool but do not call Transform. Worker tasks never touch the live universe;
// they produce independently owned results handed back to the driver.
package workerpool

import (
	"fmt"
	"sync"
)

// minChunkSize and maxChunkSize bound how a slice is split across
// workers, avoiding tasks so small their dispatch overhead dominates or so
// large a single worker become the critical path (spec §4.M: "a chunk
// size floor/ceiling avoids tiny or monolithic tasks").
const (
	minChunkSize = 8
	maxChunkSize = 256
)

// Pool runs bounded, structured parallel transforms. nthreads <= 1 makes
// every call run inline on the caller's goroutine (spec §6: "0 or 1 ->
// no pool").
type Pool struct {
	nthreads int
}

func New(nthreads int) *Pool {
	if nthreads < 0 {
		nthreads = 0
	}
	return &Pool{nthreads: nthreads}
}

func (p *Pool) chunkSize(n int) int {
	if p.nthreads <= 1 {
		return n
	}
	size := n / p.nthreads
	if size < minChunkSize {
		size = minChunkSize
	}
	if size > maxChunkSize {
		size = maxChunkSize
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Transform applies fn to every element of in, producing out[i] = fn(in[i]),
// split across chunks and run on up to nthreads goroutines. If any chunk's
// fn returns an error, Transform aborts the remaining work and returns the
// first error, discarding all partial output (spec §4.M: "failure of any
// chunk aborts the entire duplication and frees partial work").
func Transform[T any, R any](p *Pool, in []T, fn func(T) (R, error)) ([]R, error) {
	if len(in) == 0 {
		return nil, nil
	}
	if p.nthreads <= 1 {
		out := make([]R, len(in))
		for i, v := range in {
			r, err := fn(v)
			if err != nil {
				return nil, fmt.Errorf("workerpool: element %d: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	}

	chunk := p.chunkSize(len(in))
	out := make([]R, len(in))

	var wg sync.WaitGroup
	errCh := make(chan error, (len(in)/chunk)+1)
	stop := make(chan struct{})
	var stopOnce sync.Once

	for start := 0; start < len(in); start += chunk {
		end := start + chunk
		if end > len(in) {
			end = len(in)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				select {
				case <-stop:
					return
				default:
				}
				r, err := fn(in[i])
				if err != nil {
					select {
					case errCh <- fmt.Errorf("workerpool: element %d: %w", i, err):
					default:
					}
					stopOnce.Do(func() { close(stop) })
					return
				}
				out[i] = r
			}
		}(start, end)
	}

	wg.Wait()
	close(errCh)
	if err, ok := <-errCh; ok {
		return nil, err
	}
	return out, nil
}
