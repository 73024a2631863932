package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"beantrace/internal/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes   int32
	AlreadyUsed int32
	Expired     int32
	NotFounds   int32
	Errors      int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.AlreadyUsed + r.Expired + r.NotFounds + r.Errors
}

// RunConcurrent executes fn in parallel goroutines and collects results.
// Errors are categorized by sentinel so race tests can assert exact outcome
// counts. This helper replaces the common WaitGroup + atomic counter pattern.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, alreadyUsed, expired, notFounds, errs atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				alreadyUsed.Add(1)
			case errors.Is(err, sentinel.ErrExpired):
				expired.Add(1)
			case errors.Is(err, sentinel.ErrNotFound):
				notFounds.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		AlreadyUsed: alreadyUsed.Load(),
		Expired:     expired.Load(),
		NotFounds:   notFounds.Load(),
		Errors:      errs.Load(),
	}
}
