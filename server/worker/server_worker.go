package worker

import (
	"context"
	"errors"
	"fmt"
	"go_msgq_copy/constants"
	"go_msgq_copy/fileio"
	"go_msgq_copy/networking"
	"go_msgq_copy/networking/status"
	"go_msgq_copy/queue"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errOutsideRoot = errors.New("path leaves the served directory")

// Outcome summarizes one finished task
type Outcome struct {
	ID        uuid.UUID
	Requester int32
	File      string
	Priority  int32
	Messages  int    // Records sent, sentinel included
	Bytes     int64  // File bytes sent
	CRC32     uint32 // Checksum of file bytes sent
	Status    int32
	Err       error
}

// TransferWorker streams requested files back to their requesters
type TransferWorker struct {
	queue   queue.Queue
	factory fileio.IOFactory
	root    string
	log     *logrus.Entry
}

// NewTransferWorker prepares worker. Non-empty root confines requests to that directory.
func NewTransferWorker(q queue.Queue, factory fileio.IOFactory, root string, log *logrus.Entry) *TransferWorker {
	factory = fileio.FactoryOrDefault(factory)
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TransferWorker{queue: q, factory: factory, root: root, log: log}
}

// resolve maps requested name to a path on disk
func (w *TransferWorker) resolve(name string) (string, error) {
	if w.root == "" {
		return name, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%s: %w", name, errOutsideRoot)
	}
	return filepath.Join(w.root, name), nil
}

// send enqueues one response record and accounts for it
func (w *TransferWorker) send(ctx context.Context, msg *networking.Message, out *Outcome) error {
	if err := w.queue.Send(ctx, msg, true); err != nil {
		return err
	}
	out.Messages++
	out.Bytes += int64(msg.PayloadLength)
	if msg.Status == status.OK {
		out.CRC32 = fileio.UpdateCRC32(out.CRC32, msg.Data())
	}
	return nil
}

// fail ends transfer with an error sentinel. The requester gets cause's text only.
func (w *TransferWorker) fail(ctx context.Context, tag int64, code int32, cause error, out *Outcome) {
	out.Status = code
	out.Err = cause
	if class := networking.StatusError(code, ""); !errors.Is(cause, class) {
		out.Err = fmt.Errorf("%w: %w", class, cause)
	}
	sentinel := networking.NewSentinel(tag, code, []byte(networking.Detail(cause)))
	if serr := w.queue.Send(ctx, sentinel, true); serr != nil {
		out.Err = errors.Join(out.Err, serr)
		return
	}
	// Error text is not file data.
	out.Messages++
}

// openError describes a failed open by the requested name, never the path on disk
func openError(name string, err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", name, pathErr.Err)
	}
	return err
}

// Run streams the file named in req to its requester and ends with exactly one sentinel
func (w *TransferWorker) Run(ctx context.Context, id uuid.UUID, req networking.Message) (out Outcome) {
	tag := int64(req.RequesterID)
	out = Outcome{ID: id, Requester: req.RequesterID, File: req.Filename(), Priority: req.Priority}

	l := w.log.WithFields(logrus.Fields{
		"transfer_id": id.String(),
		"requester":   req.RequesterID,
		"priority":    req.Priority,
		"file":        out.File,
	})

	defer func() {
		if e := recover(); e != nil {
			l.WithField("error", e).Error("transfer worker panicked")
			w.fail(ctx, tag, status.READFAILED, fmt.Errorf("internal error: %v", e), &out)
		}
	}()

	if err := req.ValidateRequest(); err != nil {
		if networking.ValidTag(tag) {
			w.fail(ctx, tag, status.INVALIDREQUEST, err, &out)
		} else {
			out.Status, out.Err = status.INVALIDREQUEST, err
		}
		return out
	}

	reader := w.factory.NewReader()
	path, err := w.resolve(out.File)
	if err == nil {
		err = openError(out.File, reader.Open(path, constants.FILE_READ_BUFFER))
	}
	if err != nil {
		l.WithError(err).WithField("path", path).Warn("file open failed")
		w.fail(ctx, tag, status.FILEOPENFAILED, err, &out)
		return out
	}
	defer reader.Close()

	capacity := DataCapacity(req.Priority)
	l.WithField("chunk_size", capacity).Debug("transfer started")

	buffer := make([]byte, 0, capacity)
	for {
		c, err := reader.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			l.WithError(err).Warn("file read failed")
			// Deliver what was read before the failure.
			if len(buffer) > 0 {
				chunk, _ := networking.NewChunk(tag, req.Priority, buffer)
				if serr := w.send(ctx, chunk, &out); serr != nil {
					l.WithError(serr).Error("chunk send failed")
					w.fail(ctx, tag, status.READFAILED, errors.Join(err, serr), &out)
					return out
				}
			}
			w.fail(ctx, tag, status.READFAILED, err, &out)
			return out
		}

		buffer = append(buffer, c)
		if len(buffer) == capacity {
			chunk, _ := networking.NewChunk(tag, req.Priority, buffer)
			if err := w.send(ctx, chunk, &out); err != nil {
				l.WithError(err).Error("chunk send failed")
				w.fail(ctx, tag, status.READFAILED, err, &out)
				return out
			}
			// Cleanup for next chunk.
			buffer = buffer[:0]
		}
	}

	// Tail of the file rides on the sentinel.
	if err := w.send(ctx, networking.NewSentinel(tag, status.OK, buffer), &out); err != nil {
		l.WithError(err).Error("sentinel send failed")
		out.Status = status.READFAILED
		out.Err = err
		return out
	}

	l.WithFields(logrus.Fields{
		"messages": out.Messages,
		"bytes":    out.Bytes,
		"crc32":    fileio.CRC32Hex(out.CRC32),
	}).Info("transfer completed")
	return out
}
