// Package parallel provides higher-order functions that run in parallel,
// with maximum concurrency bounded. group.Manager uses these to
// scan large live-group sets concurrently when compacting released
// handles.
//
// Context cancellation: if the input context is canceled, MapBounded*
// immediately stops mapping new items, waits for running workers to
// exit, then returns the context error.
package parallel

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// MapBoundedSema maps a list of ~[]T to []R using a provided map
// function f, running up to inflight goroutines at once.
func MapBoundedSema[S ~[]T, T, R any](
	ctx context.Context, list S, f func(int, T) R, inflight int,
) (result []R, err error) {
	result = make([]R, len(list))

	sema := semaphore.NewWeighted(int64(inflight))

	for i, v := range list {
		err = sema.Acquire(ctx, 1)
		if err != nil {
			break
		}

		go func(i int, v T) {
			defer sema.Release(1)
			result[i] = f(i, v)
		}(i, v)
	}

	if err == nil {
		err = sema.Acquire(ctx, int64(inflight))
		if err == nil {
			return
		}
	}

	for sema.Acquire(context.Background(), int64(inflight)) != nil {
	}

	return
}

// MapBoundedPool maps a list of ~[]T to []R using a provided map
// function f, with a fixed-size pool of workers.
func MapBoundedPool[S ~[]T, T, R any](
	ctx context.Context, list S, f func(int, T) R, workers int,
) (result []R, err error) {
	result = make([]R, len(list))
	indices := make(chan int, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j, ok := <-indices:
					if !ok {
						return
					}
					result[j] = f(j, list[j])
				}
			}
		}()
	}

producer:
	for i := range list {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break producer
		case indices <- i:
		}
	}
	close(indices)

	wg.Wait()
	return
}

// MapBoundedErrgroup maps a list of ~[]T to []R using a provided map
// function f, with a maximum of workers inflight goroutines coordinated
// by an errgroup.Group.
func MapBoundedErrgroup[S ~[]T, T, R any](
	ctx context.Context, list S, f func(int, T) R, workers int,
) (result []R, err error) {
	result = make([]R, len(list))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range list {
		i := i
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result[i] = f(i, list[i])
			return ctx.Err()
		})
	}

	return result, g.Wait()
}

// MapBoundedPoolErrgroup maps a list of ~[]T to []R using a provided
// map function f, with a fixed-size pool of workers coordinated by an
// errgroup.Group.
func MapBoundedPoolErrgroup[S ~[]T, T, R any](
	ctx context.Context, list S, f func(int, T) R, workers int,
) (result []R, err error) {
	result = make([]R, len(list))
	indices := make(chan int)

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case j, ok := <-indices:
					if !ok {
						return nil
					}
					result[j] = f(j, list[j])
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

producer:
	for i := range list {
		select {
		case <-ctx.Done():
			break producer
		case indices <- i:
		}
	}
	close(indices)

	return result, g.Wait()
}
