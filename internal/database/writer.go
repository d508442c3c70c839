package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("write queue full")
	ErrClosed    = errors.New("writer closed")
)

const writeTimeout = 5 * time.Second

// writer drains a buffered queue into Postgres on its own goroutine, so
// callers on the game loop never wait for a round trip.
type writer[T any] struct {
	mu     sync.RWMutex
	closed bool
	queue  chan T
	done   chan struct{}
	write  func(context.Context, T) error
	log    *zap.Logger
}

func newWriter[T any](buffer int, log *zap.Logger, write func(context.Context, T) error) *writer[T] {
	w := &writer[T]{
		queue: make(chan T, buffer),
		done:  make(chan struct{}),
		write: write,
		log:   log,
	}
	go w.run()
	return w
}

func (w *writer[T]) enqueue(item T) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *writer[T]) run() {
	defer close(w.done)
	for item := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.write(ctx, item); err != nil {
			w.log.Error("write failed", zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting items and waits until the queue is flushed.
func (w *writer[T]) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}
