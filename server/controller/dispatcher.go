package server

import (
	"context"
	"errors"
	"fmt"
	"go_msgq_copy/constants"
	"go_msgq_copy/fileio"
	"go_msgq_copy/networking"
	"go_msgq_copy/queue"
	"go_msgq_copy/server/worker"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options configure the dispatcher
type Options struct {
	Root            string           // Serve only files below this directory when set
	ShutdownTimeout time.Duration    // Time granted to running transfers on shutdown
	Factory         fileio.IOFactory // File access, buffered by default
}

// Server listens on the request tag and hands every request to its own worker
type Server struct {
	queue      queue.Queue
	handler    *Handler
	worker     *worker.TransferWorker
	supervisor *worker.Supervisor
	timeout    time.Duration
	log        *logrus.Entry
	workCtx    context.Context
	stopWork   context.CancelFunc
}

// NewServer prepares dispatcher on queue q
func NewServer(q queue.Queue, opts Options, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = constants.DEFAULT_SHUTDOWN * time.Second
	}

	// Transfers outlive the listening loop until Shutdown gives up on them.
	workCtx, stop := context.WithCancel(context.Background())

	return &Server{
		queue:      q,
		handler:    &Handler{queue: q, log: log},
		worker:     worker.NewTransferWorker(q, opts.Factory, opts.Root, log),
		supervisor: new(worker.Supervisor),
		timeout:    opts.ShutdownTimeout,
		log:        log,
		workCtx:    workCtx,
		stopWork:   stop,
	}
}

// Run receives requests until ctx is cancelled or the queue goes away
func (s *Server) Run(ctx context.Context) error {
	s.log.WithField("tag", constants.RESERVED_TAG).Info("listening for requests")

	for {
		req, err := s.queue.Receive(ctx, constants.RESERVED_TAG, true)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("stopped listening")
				return nil
			}
			if errors.Is(err, networking.ErrMalformedRecord) {
				s.log.WithError(err).Warn("discarding malformed record")
				continue
			}
			return fmt.Errorf("receive request: %w", err)
		}

		s.Dispatch(req)
	}
}

// Dispatch validates req and starts its worker without waiting for it.
// The returned future yields the outcome once the worker is done.
func (s *Server) Dispatch(req *networking.Message) <-chan worker.Outcome {
	id := uuid.New()
	// Worker gets its own copy of the request.
	request := *req

	if err := s.handler.validate(&request); err != nil {
		return s.supervisor.Go(func() worker.Outcome {
			return s.handler.reject(s.workCtx, id, &request, err)
		})
	}

	s.log.WithFields(logrus.Fields{
		"transfer_id": id.String(),
		"requester":   req.RequesterID,
		"priority":    req.Priority,
		"file":        req.Filename(),
		"active":      s.supervisor.Active() + 1,
	}).Info("dispatching transfer")

	return s.supervisor.Go(func() worker.Outcome {
		return s.worker.Run(s.workCtx, id, request)
	})
}

// Active returns number of transfers in flight
func (s *Server) Active() int {
	return s.supervisor.Active()
}

// Shutdown waits for running transfers, aborting them when the timeout expires
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.supervisor.Wait(ctx)
	if err != nil {
		s.log.WithError(err).Warn("aborting remaining transfers")
	}
	s.stopWork()
	return err
}
