package agent

import (
	"context"
	"errors"
	"io"
	"sync"
)

// errStreamClosed signals that the consumer abandoned the stream via Close.
var errStreamClosed = errors.New("stream closed by consumer")

// Stream delivers the terminal turn of one run as a forward-only,
// single-consumption sequence of text increments. Delivery is pull-based: the
// producing goroutine blocks on an unbuffered channel until the consumer
// calls Recv, so consumption drives production and provides backpressure.
//
// Intermediate turns (those carrying tool calls) are buffered inside the loop
// controller and never surface here.
type Stream struct {
	ch        chan string
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	err  error
	text string
}

func newStream() *Stream {
	return &Stream{ch: make(chan string), done: make(chan struct{})}
}

// Recv returns the next text increment. It blocks until one is available and
// returns io.EOF once the run completed, or the run's terminal error
// (iteration limit, model transport failure, cancellation).
func (s *Stream) Recv() (string, error) {
	delta, ok := <-s.ch
	if ok {
		return delta, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

// Text drains any remaining increments and returns the run's complete final
// text, or the run's terminal error.
func (s *Stream) Text() (string, error) {
	for {
		if _, err := s.Recv(); err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, nil
}

// Close abandons consumption. The run winds down on its own; tool invocations
// already dispatched are not cancelled and their side effects are not rolled
// back. Close is idempotent.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// push delivers one increment to the consumer, blocking until it is received,
// the consumer closes the stream or ctx is cancelled. Producer side only.
func (s *Stream) push(ctx context.Context, delta string) error {
	select {
	case s.ch <- delta:
		return nil
	case <-s.done:
		return errStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish records the final text or terminal error and releases the consumer.
// Called exactly once by the run goroutine.
func (s *Stream) finish(text string, err error) {
	s.mu.Lock()
	s.text = text
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}
