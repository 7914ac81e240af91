package pipeline

import (
	"context"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/pgstream/pkg/metrics"
	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// Pool runs n indexed tasks. Run returns once every started task has
// returned, with the first task error. A task that panics is reported as a
// *PanicError and stops the tasks that have not started yet.
type Pool interface {
	Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error
}

// PanicError is a panic recovered from a work item.
type PanicError struct {
	Item  int
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return stringpool.Sprintf("work item %d panicked: %v", e.Item, e.Value)
}

// ThreadPool drives tasks on a bounded number of goroutines.
type ThreadPool struct {
	workers int
}

// NewThreadPool creates a pool of the given size. A non-positive size uses
// one worker per CPU.
func NewThreadPool(workers int) *ThreadPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &ThreadPool{workers: workers}
}

// Workers returns the pool size.
func (p *ThreadPool) Workers() int {
	return p.workers
}

func (p *ThreadPool) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return protect(gctx, i, task)
		})
	}
	return g.Wait()
}

// LocalPool drives tasks one at a time on the calling goroutine.
type LocalPool struct{}

// NewLocalPool creates a sequential pool.
func NewLocalPool() *LocalPool {
	return &LocalPool{}
}

func (p *LocalPool) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := protect(ctx, i, task); err != nil {
			return err
		}
	}
	return nil
}

func protect(ctx context.Context, i int, task func(ctx context.Context, i int) error) (err error) {
	metrics.ActiveWorkItems.Inc()
	defer metrics.ActiveWorkItems.Dec()

	defer func() {
		if r := recover(); r != nil {
			metrics.WorkItemPanics.Inc()
			err = &PanicError{Item: i, Value: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx, i)
}
