// Package queue is the Channel Service: one shared, tag-addressed queue that
// every server worker and client reads from and writes to.
//
// Records are dequeued in FIFO order per tag. Records of different tags
// interleave arbitrarily. Two handles opened with different keys address
// disjoint queues and never see each other's records.
package queue

import (
	"context"
	"errors"
	"fmt"
	"go_msgq_copy/constants"
	"go_msgq_copy/networking"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrChannelUnavailable = errors.New("channel unavailable")
	ErrSendFailed         = errors.New("send failed")
	ErrNoMessage          = errors.New("no message")
	ErrClosed             = errors.New("queue closed")
	ErrInvalidTag         = errors.New("tag must be positive")
)

// Queue is a handle on a shared tag-addressed queue
type Queue interface {
	// Send enqueues msg under msg.Tag. Non-blocking sends fail on a full queue.
	Send(ctx context.Context, msg *networking.Message, blocking bool) error
	// Receive dequeues the oldest record queued under tag. Tag must be positive.
	Receive(ctx context.Context, tag int64, blocking bool) (*networking.Message, error)
	// Close detaches the handle.
	Close() error
}

// Options select and configure a queue backend
type Options struct {
	Backend string        // memory, sysv or amqp
	Key     int           // Rendezvous key shared by server and clients
	Depth   int           // Records buffered per tag (memory)
	Poll    time.Duration // Poll pacing (sysv, amqp)
	AMQPURI string        // Broker address (amqp)
	DSCP    int           // IP TOS marking of the broker connection (amqp)
}

// DefaultOptions returns options for the kernel queue with the protocol key
func DefaultOptions() Options {
	return Options{
		Backend: constants.DEFAULT_BACKEND,
		Key:     constants.MSG_KEY,
		Depth:   constants.DEFAULT_TAG_DEPTH,
		Poll:    constants.DEFAULT_POLL_MS * time.Millisecond,
		AMQPURI: constants.DEFAULT_AMQP_URI,
		DSCP:    constants.DEFAULT_DSCP,
	}
}

// Open creates or attaches the queue identified by opts.Key
func Open(opts Options) (Queue, error) {
	if opts.Poll <= 0 {
		opts.Poll = constants.DEFAULT_POLL_MS * time.Millisecond
	}
	switch opts.Backend {
	case "memory":
		return Attach(opts.Key, opts.Depth), nil
	case "sysv":
		return openSysV(opts.Key, opts.Poll)
	case "amqp":
		q, err := DialAMQP(opts.AMQPURI, opts.Key, opts.DSCP, opts.Poll)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrChannelUnavailable, opts.Backend)
	}
}

// checkTag rejects tags that do not name a single reader
func checkTag(tag int64) error {
	if tag <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTag, tag)
	}
	return nil
}

// pace waits for the next poll slot. A wait cut short by the deadline reports the context error.
func pace(ctx context.Context, limiter *rate.Limiter) error {
	err := limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); ok {
		<-ctx.Done()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
