package feed

import (
	"context"
	"errors"
	"sync"
)

// Stream is a live view over a subscription. Each value delivered on
// Updates is a complete state produced by the load function.
type Stream[T any] struct {
	out    chan T
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Watch starts a live view. It loads and delivers the current state, then
// reloads after every event on sub. When the reader falls behind only the
// newest state is kept, so a reader never sees an older state after a newer
// one. The stream takes ownership of sub and closes it when it ends.
//
// The stream ends when ctx is cancelled, Close is called, or load fails;
// Err reports the load failure in the last case.
func Watch[T any](ctx context.Context, sub *Subscription, load func(context.Context) (T, error)) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		out:    make(chan T),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, sub, load)
	return s
}

// Updates returns the delivery channel. It is closed when the stream ends.
func (s *Stream[T]) Updates() <-chan T {
	return s.out
}

// Err returns the error that ended the stream, or nil when it ended
// because of Close or context cancellation. Valid once Updates is closed.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream and waits for delivery to stop. No value is
// delivered after Close returns.
func (s *Stream[T]) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the stream has stopped.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Stream[T]) run(ctx context.Context, sub *Subscription, load func(context.Context) (T, error)) {
	defer close(s.done)
	defer close(s.out)
	defer sub.Close()

	var (
		current T
		pending bool
		dirty   = true
	)
	for {
		if dirty {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() == nil || !errors.Is(err, ctx.Err()) {
					s.setErr(err)
				}
				return
			}
			current, pending, dirty = v, true, false
		}

		var out chan<- T
		if pending {
			out = s.out
		}
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
			dirty = true
		case out <- current:
			pending = false
		}
	}
}

func (s *Stream[T]) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
