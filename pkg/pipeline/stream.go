package pipeline

import (
	"context"
	"errors"
	"iter"
)

const resultBuffer = 128

// Result is one item of a Stream: a value, or the error a sub-stream
// yielded in its place.
type Result[T any] struct {
	Value T
	Err   error
}

// Stream is the merged output of FlatMap. It must be drained or closed.
type Stream[T any] struct {
	results chan Result[T]
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// FlatMap turns every item into a sub-stream with fn and merges the
// sub-streams into one Stream, driving them on pool. The context passed to fn
// is cancelled when the stream is closed, when ctx is cancelled, or when
// another work item panics.
func FlatMap[A, T any](ctx context.Context, pool Pool, items []A, fn func(context.Context, A) iter.Seq2[T, error]) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		results: make(chan Result[T], resultBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.results)

		err := pool.Run(ctx, len(items), func(ctx context.Context, i int) error {
			for v, err := range fn(ctx, items[i]) {
				select {
				case s.results <- Result[T]{Value: v, Err: err}:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
		if err == nil {
			return
		}

		s.err = err
		var perr *PanicError
		if errors.As(err, &perr) {
			select {
			case s.results <- Result[T]{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return s
}

// C returns the result channel. It is closed once every work item is done.
func (s *Stream[T]) C() <-chan Result[T] {
	return s.results
}

// All returns an iterator over the results. Breaking out of the loop closes
// the stream.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for r := range s.results {
			if !yield(r.Value, r.Err) {
				s.Close()
				return
			}
		}
	}
}

// Close cancels outstanding work, waits for it to stop and returns the error
// that ended the pool early, if any. It is safe to call more than once.
func (s *Stream[T]) Close() error {
	s.cancel()
	for range s.results {
	}
	<-s.done
	return s.err
}
