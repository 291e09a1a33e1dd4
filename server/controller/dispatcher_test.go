package server

import (
	"context"
	"go_msgq_copy/constants"
	"go_msgq_copy/networking"
	"go_msgq_copy/networking/status"
	"go_msgq_copy/queue"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestServer(c *qt.C, root string) (*Server, *queue.Broker, *test.Hook) {
	b := queue.NewBroker(256)
	c.Cleanup(func() { b.Close() })
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := NewServer(b, Options{Root: root, ShutdownTimeout: time.Second}, logrus.NewEntry(logger))
	return s, b, hook
}

func receive(c *qt.C, q queue.Queue, tag int64) *networking.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := q.Receive(ctx, tag, true)
	c.Assert(err, qt.IsNil)
	return msg
}

func TestDispatchServesRequest(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello there"), 0o644), qt.IsNil)
	s, b, _ := newTestServer(c, dir)

	req, err := networking.NewRequest(77, 1, "hello.txt")
	c.Assert(err, qt.IsNil)
	out := <-s.Dispatch(req)
	c.Assert(out.Err, qt.IsNil)
	c.Assert(out.Requester, qt.Equals, int32(77))
	c.Assert(out.Messages, qt.Equals, 1)

	msg := receive(c, b, 77)
	c.Assert(msg.IsSentinel(), qt.IsTrue)
	c.Assert(string(msg.Data()), qt.Equals, "hello there")
}

func TestDispatchCopiesRequest(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "a"), []byte("A"), 0o644), qt.IsNil)
	s, b, _ := newTestServer(c, dir)

	req, err := networking.NewRequest(78, 1, "a")
	c.Assert(err, qt.IsNil)
	future := s.Dispatch(req)
	// Reusing the buffer must not affect the running transfer.
	req.RequesterID = 79
	c.Assert((<-future).Requester, qt.Equals, int32(78))
	c.Assert(string(receive(c, b, 78).Data()), qt.Equals, "A")
}

func TestDispatchRejectsInvalidRequest(t *testing.T) {
	c := qt.New(t)
	s, b, hook := newTestServer(c, "")

	req, err := networking.NewRequest(80, 1, "x")
	c.Assert(err, qt.IsNil)
	req.Priority = 0

	out := <-s.Dispatch(req)
	c.Assert(out.Status, qt.Equals, int32(status.INVALIDREQUEST))
	c.Assert(out.Err, qt.ErrorIs, networking.ErrInvalidRequest)
	c.Assert(out.Messages, qt.Equals, 1)

	msg := receive(c, b, 80)
	c.Assert(msg.IsSentinel(), qt.IsTrue)
	c.Assert(msg.Status, qt.Equals, int32(status.INVALIDREQUEST))
	c.Assert(string(msg.Data()), qt.Equals, "priority 0 outside 1..2048")
	c.Assert(hook.LastEntry().Message, qt.Equals, "rejecting invalid request")
}

func TestDispatchDropsUnaddressableRequester(t *testing.T) {
	c := qt.New(t)
	s, b, hook := newTestServer(c, "")

	req, err := networking.NewRequest(81, 1, "x")
	c.Assert(err, qt.IsNil)
	req.RequesterID = constants.RESERVED_TAG

	out := <-s.Dispatch(req)
	c.Assert(out.Messages, qt.Equals, 0)
	c.Assert(out.Status, qt.Equals, int32(status.INVALIDREQUEST))
	c.Assert(hook.LastEntry().Level, qt.Equals, logrus.WarnLevel)
	c.Assert(hook.LastEntry().Message, qt.Equals, "dropping request from unaddressable requester")
	// Nothing was answered on the request tag.
	c.Assert(b.Pending(constants.RESERVED_TAG), qt.Equals, 0)
}

func TestRunDispatchesUntilCancelled(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "f"), []byte("payload"), 0o644), qt.IsNil)
	s, b, _ := newTestServer(c, dir)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- s.Run(ctx) }()

	for _, id := range []int32{101, 102} {
		req, err := networking.NewRequest(id, 2, "f")
		c.Assert(err, qt.IsNil)
		c.Assert(b.Send(context.Background(), req, true), qt.IsNil)
	}
	for _, id := range []int64{101, 102} {
		c.Assert(string(receive(c, b, id).Data()), qt.Equals, "payload")
	}

	cancel()
	c.Assert(<-stopped, qt.IsNil)
	c.Assert(s.Shutdown(), qt.IsNil)
	c.Assert(s.Active(), qt.Equals, 0)
}

func TestRunFailsWhenQueueCloses(t *testing.T) {
	c := qt.New(t)
	s, b, _ := newTestServer(c, "")

	stopped := make(chan error, 1)
	go func() { stopped <- s.Run(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	b.Close()
	c.Assert(<-stopped, qt.ErrorIs, queue.ErrClosed)
}

func TestShutdownAbortsStuckTransfers(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "big"), make([]byte, 10000), 0o644), qt.IsNil)

	// Nobody drains tag 90, so the worker blocks once its tag is full.
	b := queue.NewBroker(1)
	defer b.Close()
	logger, _ := test.NewNullLogger()
	s := NewServer(b, Options{Root: dir, ShutdownTimeout: 20 * time.Millisecond}, logrus.NewEntry(logger))

	req, err := networking.NewRequest(90, 1, "big")
	c.Assert(err, qt.IsNil)
	future := s.Dispatch(req)

	c.Assert(s.Shutdown(), qt.ErrorIs, context.DeadlineExceeded)
	out := <-future
	c.Assert(out.Err, qt.ErrorIs, context.Canceled)
	c.Assert(s.Active(), qt.Equals, 0)
}
