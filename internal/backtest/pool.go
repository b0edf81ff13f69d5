package backtest

import (
	"context"
	"sync"
)

// parallel calls fn(i) for every i in [0, n) on at most workers goroutines.
// Once ctx is done no further indices are handed out; calls already running
// finish. It returns how many calls completed.
//
// fn must only write state owned by index i.
func parallel(ctx context.Context, n, workers int, fn func(i int)) int {
	if n == 0 {
		return 0
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return completed
}
