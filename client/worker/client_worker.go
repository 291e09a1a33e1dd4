package worker

import (
	"errors"
	"go_msgq_copy/constants"
	"go_msgq_copy/fileio"
	"sync"
)

var errOutputClosed = errors.New("output already closed")

// Output decouples receiving from persisting: chunks queue up while a goroutine writes them out
type Output struct {
	writer fileio.FileWriter
	stream chan []byte
	done   chan error
	mu     sync.Mutex
	err    error
	gate   sync.RWMutex // Held for writing by Close, for reading by Write
	closed bool
}

// StartOutput opens filename ("-" for stdout) and starts the writing goroutine
func StartOutput(factory fileio.IOFactory, filename string, compress bool, queueLen int) (*Output, error) {
	writer := fileio.FactoryOrDefault(factory).NewWriter()
	if err := writer.New(filename, constants.FILE_WRITE_BUFFER, compress); err != nil {
		return nil, err
	}

	o := &Output{
		writer: writer,
		stream: make(chan []byte, queueLen),
		done:   make(chan error, 1),
	}

	go func() {
		for chunk := range o.stream {
			if o.failed() {
				// Keep draining so Write never blocks forever.
				continue
			}
			if _, err := o.writer.Write(chunk); err != nil {
				o.setErr(err)
			}
		}
		// Flush and close the file.
		if err := o.writer.Close(); err != nil {
			o.setErr(err)
		}
		o.done <- o.firstErr()
		close(o.done)
	}()

	return o, nil
}

func (o *Output) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
}

func (o *Output) firstErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Output) failed() bool {
	return o.firstErr() != nil
}

// Write queues a copy of data for writing
func (o *Output) Write(data []byte) (int, error) {
	if err := o.firstErr(); err != nil {
		return 0, err
	}
	o.gate.RLock()
	defer o.gate.RUnlock()
	if o.closed {
		return 0, errOutputClosed
	}

	chunk := make([]byte, len(data))
	copy(chunk, data)
	o.stream <- chunk
	return len(data), nil
}

// Close waits for all queued data to be persisted
func (o *Output) Close() error {
	o.gate.Lock()
	if o.closed {
		o.gate.Unlock()
		return errOutputClosed
	}
	o.closed = true
	close(o.stream)
	o.gate.Unlock()

	return <-o.done
}
