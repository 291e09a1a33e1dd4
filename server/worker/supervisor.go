package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Supervisor runs one goroutine per transfer and keeps track of them
type Supervisor struct {
	wg      sync.WaitGroup
	active  atomic.Int64
	started atomic.Uint64
}

// Go runs task in its own goroutine and returns its completion future
func (s *Supervisor) Go(task func() Outcome) <-chan Outcome {
	done := make(chan Outcome, 1)
	s.wg.Add(1)
	s.active.Add(1)
	s.started.Add(1)

	go func() {
		defer s.wg.Done()
		out := task()
		s.active.Add(-1)
		done <- out
		close(done)
	}()

	return done
}

// Active returns number of tasks still running
func (s *Supervisor) Active() int {
	return int(s.active.Load())
}

// Started returns number of tasks ever started
func (s *Supervisor) Started() uint64 {
	return s.started.Load()
}

// Wait blocks until every task has finished or ctx expires
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d transfers still running: %w", s.Active(), ctx.Err())
	}
}
