package comms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go_msgq_copy/constants"
	"go_msgq_copy/fileio"
	"go_msgq_copy/networking"
	"go_msgq_copy/networking/status"
	"go_msgq_copy/queue"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrRequestSendFailed = errors.New("request send failed")
	ErrTimeout           = errors.New("transfer timed out")
	ErrBadIdentity       = errors.New("identity cannot be used as a tag")
	ErrNoRequest         = errors.New("no request outstanding")
)

// Session states
const (
	IDLE = iota
	REQUESTSENT
	RECEIVING
	COMPLETE
)

// Options configure a session
type Options struct {
	Identity int32         // Tag responses are addressed to, the process ID by default
	Timeout  time.Duration // Bound on the whole transfer, zero waits forever
}

// Result describes a finished transfer
type Result struct {
	Data     []byte // Reconstructed file, set by Fetch only
	Messages int    // Records received, sentinel included
	Bytes    int64  // File bytes received
	CRC32    uint32 // Checksum of file bytes received
	Status   int32  // Status carried by the sentinel
	Detail   string // Error text of a failed transfer
}

// Client runs one transfer at a time over the shared queue
type Client struct {
	queue    queue.Queue
	identity int32
	timeout  time.Duration
	state    int
	log      *logrus.Entry
}

// NewClient prepares session for identity
func NewClient(q queue.Queue, opts Options, log *logrus.Entry) (*Client, error) {
	if !networking.ValidTag(int64(opts.Identity)) {
		return nil, fmt.Errorf("%w: %d", ErrBadIdentity, opts.Identity)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		queue:    q,
		identity: opts.Identity,
		timeout:  opts.Timeout,
		log:      log.WithField("identity", opts.Identity),
	}, nil
}

// State returns current session state
func (c *Client) State() int {
	return c.state
}

// Request asks the server to stream filename at given priority
func (c *Client) Request(ctx context.Context, filename string, priority int32) error {
	req, err := networking.NewRequest(c.identity, priority, filename)
	if err != nil {
		return err
	}

	if err := c.queue.Send(ctx, req, true); err != nil {
		return fmt.Errorf("%w: %w", ErrRequestSendFailed, err)
	}

	c.state = REQUESTSENT
	c.log.WithFields(logrus.Fields{
		"file":     filename,
		"priority": priority,
	}).Debug("request sent")
	return nil
}

// Receive collects the response stream into sink until the sentinel arrives.
// A failed transfer returns its partial result together with the error.
func (c *Client) Receive(ctx context.Context, sink io.Writer) (*Result, error) {
	if c.state != REQUESTSENT {
		return nil, ErrNoRequest
	}
	c.state = RECEIVING

	result := new(Result)
	for {
		msg, err := c.queue.Receive(ctx, int64(c.identity), true)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %w", ErrTimeout, err)
			}
			return result, err
		}
		if msg.Tag != int64(c.identity) {
			return result, fmt.Errorf("%w: tag %d on a response to %d", networking.ErrMalformedRecord, msg.Tag, c.identity)
		}
		result.Messages++

		data := msg.Data()
		if msg.IsSentinel() && msg.Status != status.OK {
			// Sentinel payload is error text, not file data.
			c.state = COMPLETE
			result.Status = msg.Status
			result.Detail = string(data)
			return result, networking.StatusError(msg.Status, result.Detail)
		}

		if len(data) > 0 {
			if _, err := sink.Write(data); err != nil {
				return result, fmt.Errorf("write output: %w", err)
			}
			result.Bytes += int64(len(data))
			result.CRC32 = fileio.UpdateCRC32(result.CRC32, data)
		}

		if msg.IsSentinel() {
			c.state = COMPLETE
			result.Status = status.OK
			return result, nil
		}
	}
}

// Transfer requests filename and streams it into sink
func (c *Client) Transfer(ctx context.Context, filename string, priority int32, sink io.Writer) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	begin := time.Now()
	if err := c.Request(ctx, filename, priority); err != nil {
		return nil, err
	}

	result, err := c.Receive(ctx, sink)
	l := c.log.WithFields(logrus.Fields{
		"file":     filename,
		"messages": result.Messages,
		"bytes":    result.Bytes,
		"duration": time.Since(begin),
	})
	if err != nil {
		l.WithError(err).Warn("transfer failed")
		return result, err
	}
	l.WithField("crc32", fileio.CRC32Hex(result.CRC32)).Info("transfer completed")
	return result, nil
}

// Fetch requests filename and returns its reconstructed content
func (c *Client) Fetch(ctx context.Context, filename string, priority int32) (*Result, error) {
	buffer := bytes.NewBuffer(make([]byte, 0, constants.MAXPAYLOAD))
	result, err := c.Transfer(ctx, filename, priority, buffer)
	if result != nil {
		result.Data = buffer.Bytes()
	}
	return result, err
}
