package queue

import (
	"context"
	"fmt"
	"go_msgq_copy/constants"
	"go_msgq_copy/networking"
	"sync"
)

var (
	brokersMu sync.Mutex
	brokers   = make(map[int]*Broker)
)

// Broker is an in-process queue with one bounded channel per tag
type Broker struct {
	key        int
	depth      int
	registered bool
	refs       int // Guarded by brokersMu
	mu         sync.Mutex
	tags       map[int64]chan *networking.Message
	done       chan struct{}
	once       sync.Once
}

// NewBroker creates a private broker buffering depth records per tag
func NewBroker(depth int) *Broker {
	if depth <= 0 {
		depth = constants.DEFAULT_TAG_DEPTH
	}
	return &Broker{
		depth: depth,
		tags:  make(map[int64]chan *networking.Message),
		done:  make(chan struct{}),
	}
}

// Attach returns the process-wide broker for key, creating it on first use.
// Every Attach must be paired with Close.
func Attach(key, depth int) *Broker {
	brokersMu.Lock()
	defer brokersMu.Unlock()

	b, ok := brokers[key]
	if !ok {
		b = NewBroker(depth)
		b.key = key
		b.registered = true
		brokers[key] = b
	}
	b.refs++
	return b
}

// slot returns the channel of tag
func (b *Broker) slot(tag int64) chan *networking.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.tags[tag]
	if !ok {
		ch = make(chan *networking.Message, b.depth)
		b.tags[tag] = ch
	}
	return ch
}

// Send enqueues a copy of msg under its tag
func (b *Broker) Send(ctx context.Context, msg *networking.Message, blocking bool) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrSendFailed)
	}
	if err := checkTag(msg.Tag); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	select {
	case <-b.done:
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrClosed)
	default:
	}

	ch := b.slot(msg.Tag)
	record := msg.Clone()

	if !blocking {
		select {
		case ch <- record:
			return nil
		default:
			return fmt.Errorf("%w: tag %d is full", ErrSendFailed, msg.Tag)
		}
	}

	select {
	case ch <- record:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	case <-b.done:
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrClosed)
	}
}

// Receive dequeues the oldest record of tag
func (b *Broker) Receive(ctx context.Context, tag int64, blocking bool) (*networking.Message, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	ch := b.slot(tag)

	if !blocking {
		select {
		case msg := <-ch:
			return msg, nil
		default:
			return nil, ErrNoMessage
		}
	}

	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
}

// Pending returns number of records queued under tag
func (b *Broker) Pending(tag int64) int {
	return len(b.slot(tag))
}

// Close detaches. The broker shuts down once its last handle is closed.
func (b *Broker) Close() error {
	if b.registered {
		brokersMu.Lock()
		b.refs--
		last := b.refs <= 0
		if last && brokers[b.key] == b {
			delete(brokers, b.key)
		}
		brokersMu.Unlock()
		if !last {
			return nil
		}
	}
	b.once.Do(func() { close(b.done) })
	return nil
}
