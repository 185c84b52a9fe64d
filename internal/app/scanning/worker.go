package scanning

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/grasp/pkg/common/logger"
)

// ErrQueueClosed is returned when work is submitted after Close.
var ErrQueueClosed = errors.New("work queue closed")

// ErrQueueFull is returned when the queue buffer is exhausted.
var ErrQueueFull = errors.New("work queue full")

const defaultQueueSize = 256

// workQueue hands items produced on the frame thread to a single background
// worker, so frames never wait on I/O. Items are processed in submission order.
type workQueue[T any] struct {
	mu     sync.Mutex
	items  chan T
	closed bool

	handle func(ctx context.Context, item T)
	wg     sync.WaitGroup

	logger *logger.Logger
}

func newWorkQueue[T any](size int, logger *logger.Logger, handle func(context.Context, T)) *workQueue[T] {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &workQueue[T]{
		items:  make(chan T, size),
		handle: handle,
		logger: logger,
	}
}

// start launches the worker. The worker exits once the queue is closed and
// drained; ctx is only passed to the handler.
func (q *workQueue[T]) start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for item := range q.items {
			q.handle(ctx, item)
		}
	}()
}

// submit enqueues item without blocking.
func (q *workQueue[T]) submit(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// close stops accepting work and waits for queued items to finish.
func (q *workQueue[T]) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()

	q.wg.Wait()
}
