package stream

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidWorkers is returned when Ingest is asked for no workers.
var ErrInvalidWorkers = errors.New("stream: workers must be >= 1")

// Ingest runs produce and workers copies of sink concurrently.
//
// produce sends items on out and returns when it has no more; Ingest closes
// out afterwards. Every item is handed to exactly one sink call. The first
// error from produce or sink cancels the context passed to produce and stops
// the remaining workers; Ingest returns that error once every goroutine has
// exited.
//
// produce must stop sending when its context is done, typically by selecting
// on ctx.Done() next to the send.
func Ingest[T any](ctx context.Context, workers int, produce func(ctx context.Context, out chan<- T) error, sink func(T) error) error {
	if workers < 1 {
		return ErrInvalidWorkers
	}

	eg, ctx := errgroup.WithContext(ctx)
	items := make(chan T, workers*64)

	eg.Go(func() error {
		defer close(items)
		return produce(ctx, items)
	})

	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case item, ok := <-items:
					if !ok {
						return nil
					}
					if err := sink(item); err != nil {
						return err
					}
				}
			}
		})
	}

	return eg.Wait()
}

// Send delivers item on out unless ctx is done first. It is the building
// block of produce functions passed to Ingest.
func Send[T any](ctx context.Context, out chan<- T, item T) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- item:
		return nil
	}
}
