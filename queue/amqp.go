package queue

import (
	"context"
	"fmt"
	"go_msgq_copy/networking"
	"net"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"
)

// idleTagExpiry drops per-tag queues nobody has touched for a while
const idleTagExpiry = 10 * time.Minute

// AMQP maps every tag to its own broker queue named msgq.<key>.<tag>
type AMQP struct {
	key      int
	poll     time.Duration
	conn     *amqp.Connection
	mu       sync.Mutex // Channel use is serialized
	ch       *amqp.Channel
	declared sync.Map
}

// DialAMQP connects to the broker at uri. DSCP marks the connection for QoS.
func DialAMQP(uri string, key, dscp int, poll time.Duration) (*AMQP, error) {
	conn, err := amqp.DialConfig(uri, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial: func(network, addr string) (net.Conn, error) {
			conn, err := net.DialTimeout(network, addr, 30*time.Second)
			if err != nil {
				return nil, err
			}
			if tcp, ok := conn.(*net.TCPConn); ok {
				// Set TCP_NODELAY to always immediately send.
				tcp.SetNoDelay(true)
			}
			if dscp > 0 {
				ipv4.NewConn(conn).SetTOS(dscp)
			}
			return conn, nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	return &AMQP{key: key, poll: poll, conn: conn, ch: ch}, nil
}

// queueName returns broker queue carrying tag
func (q *AMQP) queueName(tag int64) string {
	return fmt.Sprintf("msgq.%d.%d", q.key, tag)
}

// declare makes sure the queue of tag exists. Caller holds q.mu.
func (q *AMQP) declare(tag int64) (string, error) {
	name := q.queueName(tag)
	if _, ok := q.declared.Load(name); ok {
		return name, nil
	}
	_, err := q.ch.QueueDeclare(name, false, false, false, false, amqp.Table{
		"x-expires": int32(idleTagExpiry / time.Millisecond),
	})
	if err != nil {
		return "", err
	}
	q.declared.Store(name, struct{}{})
	return name, nil
}

// Send publishes msg to the queue of its tag. Broker queues are unbounded so sends never wait.
func (q *AMQP) Send(ctx context.Context, msg *networking.Message, blocking bool) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrSendFailed)
	}
	if err := checkTag(msg.Tag); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	record, err := networking.MessageToBytes(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	name, err := q.declare(msg.Tag)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	err = q.ch.Publish("", name, false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        record,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// get pulls one record of tag if any
func (q *AMQP) get(tag int64) (*networking.Message, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	name, err := q.declare(tag)
	if err != nil {
		return nil, false, err
	}
	delivery, ok, err := q.ch.Get(name, true)
	if err != nil || !ok {
		return nil, false, err
	}
	msg, err := networking.DecodeMessage(delivery.Body)
	return msg, err == nil, err
}

// Receive pulls the oldest record of tag, polling while blocking
func (q *AMQP) Receive(ctx context.Context, tag int64, blocking bool) (*networking.Message, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	for {
		msg, ok, err := q.get(tag)
		if err != nil {
			if q.conn.IsClosed() {
				return nil, fmt.Errorf("%w: %w", ErrClosed, err)
			}
			return nil, err
		}
		if ok {
			return msg, nil
		}
		if !blocking {
			return nil, ErrNoMessage
		}

		if limiter == nil {
			limiter = rate.NewLimiter(rate.Every(q.poll), 1)
		}
		if err := pace(ctx, limiter); err != nil {
			return nil, err
		}
	}
}

// Close closes channel and connection
func (q *AMQP) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ch.Close()
	return q.conn.Close()
}
