//go:build linux && (amd64 || arm64)

package queue

import (
	"context"
	"errors"
	"fmt"
	"go_msgq_copy/networking"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// mtypeSize is the leading long of every kernel message, carrying the tag
const mtypeSize = 8

// recordBody is the message text following mtype
const recordBody = networking.RecordSize - mtypeSize

// paddedRecordBody is what C peers send: sizeof(Mesg) - sizeof(long) with the
// struct padded to 8 bytes on LP64.
const paddedRecordBody = recordBody + 4

// SysV is a handle on a System V kernel message queue
type SysV struct {
	id     int
	key    int
	poll   time.Duration
	closed atomic.Bool
}

// OpenSysV creates or attaches the kernel queue identified by key
func OpenSysV(key int, poll time.Duration) (*SysV, error) {
	id, _, errno := unix.Syscall(unix.SYS_MSGGET, uintptr(key), uintptr(unix.IPC_CREAT|0o660), 0)
	if errno != 0 {
		return nil, fmt.Errorf("%w: msgget key %d: %v", ErrChannelUnavailable, key, errno)
	}
	return &SysV{id: int(id), key: key, poll: poll}, nil
}

func openSysV(key int, poll time.Duration) (Queue, error) {
	q, err := OpenSysV(key, poll)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ID returns kernel queue identifier
func (q *SysV) ID() int {
	return q.id
}

// msgsnd enqueues a record whose first 8 bytes are the tag
func (q *SysV) msgsnd(record []byte, flags int) error {
	_, _, errno := unix.Syscall6(unix.SYS_MSGSND, uintptr(q.id), uintptr(unsafe.Pointer(&record[0])),
		uintptr(len(record)-mtypeSize), uintptr(flags), 0, 0)
	runtime.KeepAlive(record)
	if errno != 0 {
		return errno
	}
	return nil
}

// msgrcv dequeues a record of tag into buffer and returns body length
func (q *SysV) msgrcv(buffer []byte, tag int64, flags int) (int, error) {
	n, _, errno := unix.Syscall6(unix.SYS_MSGRCV, uintptr(q.id), uintptr(unsafe.Pointer(&buffer[0])),
		uintptr(len(buffer)-mtypeSize), uintptr(tag), uintptr(flags), 0)
	runtime.KeepAlive(buffer)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// Send enqueues msg. A blocking send waits for space while ctx is alive.
func (q *SysV) Send(ctx context.Context, msg *networking.Message, blocking bool) error {
	if q.closed.Load() {
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrClosed)
	}
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrSendFailed)
	}
	// Kernel rejects mtype <= 0 on send and treats it as a wildcard on receive.
	if err := checkTag(msg.Tag); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	record, err := networking.MessageToBytes(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	var limiter *rate.Limiter
	for {
		err = q.msgsnd(record, unix.IPC_NOWAIT)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case !errors.Is(err, unix.EAGAIN):
			return fmt.Errorf("%w: msgsnd: %w", ErrSendFailed, err)
		case !blocking:
			return fmt.Errorf("%w: queue %d is full", ErrSendFailed, q.id)
		}

		// Queue full. Wait for readers to make room.
		if limiter == nil {
			limiter = rate.NewLimiter(rate.Every(q.poll), 1)
		}
		if err := pace(ctx, limiter); err != nil {
			return fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		if q.closed.Load() {
			return fmt.Errorf("%w: %w", ErrSendFailed, ErrClosed)
		}
	}
}

// Receive dequeues the oldest record of tag, polling while blocking
func (q *SysV) Receive(ctx context.Context, tag int64, blocking bool) (*networking.Message, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	if q.closed.Load() {
		return nil, ErrClosed
	}
	buffer := make([]byte, mtypeSize+paddedRecordBody)

	var limiter *rate.Limiter
	for {
		n, err := q.msgrcv(buffer, tag, unix.IPC_NOWAIT)
		switch {
		case err == nil:
			// Struct padding of C peers carries nothing.
			if n != recordBody && n != paddedRecordBody {
				return nil, fmt.Errorf("%w: kernel returned %d bytes", networking.ErrMalformedRecord, n)
			}
			return networking.DecodeMessage(buffer[:networking.RecordSize])
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EIDRM), errors.Is(err, unix.EINVAL):
			return nil, fmt.Errorf("%w: msgrcv: %w", ErrClosed, err)
		case !errors.Is(err, unix.ENOMSG):
			return nil, fmt.Errorf("msgrcv: %w", err)
		case !blocking:
			return nil, ErrNoMessage
		}

		if limiter == nil {
			limiter = rate.NewLimiter(rate.Every(q.poll), 1)
		}
		if err := pace(ctx, limiter); err != nil {
			return nil, err
		}
		if q.closed.Load() {
			return nil, ErrClosed
		}
	}
}

// Close detaches the handle. The kernel queue outlives it.
func (q *SysV) Close() error {
	q.closed.Store(true)
	return nil
}

// Remove destroys the kernel queue for every attached process
func (q *SysV) Remove() error {
	q.closed.Store(true)
	_, _, errno := unix.Syscall(unix.SYS_MSGCTL, uintptr(q.id), uintptr(unix.IPC_RMID), 0)
	if errno != 0 {
		return fmt.Errorf("msgctl: %w", errno)
	}
	return nil
}
