package networking

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"go_msgq_copy/constants"
	"go_msgq_copy/networking/status"
)

// RecordSize is the encoded size of every Message: tag, length, requester, priority, payload
const RecordSize = 8 + 4 + 4 + 4 + constants.MAXPAYLOAD

// statusSlot is the payload byte carrying the transfer status. Data never reaches it.
const statusSlot = constants.MAXPAYLOAD - 1

// Header contains static message parts
type Header struct {
	Tag           int64 // RESERVED_TAG on requests, requester identity on responses
	PayloadLength int32 // Meaningful bytes in payload
	RequesterID   int32 // Identity echoed back as the response tag
	Priority      int32 // Chunk granularity on requests, SENTINEL_PRIORITY on last response
}

// Message is one fixed-size queue record
type Message struct {
	Header
	Payload [constants.MAXPAYLOAD]byte
	Status  int32 // Outcome of the transfer, only meaningful on the sentinel
}

// record is the wire layout of a Message. Status travels in the last payload byte.
type record struct {
	Header
	Payload [constants.MAXPAYLOAD]byte
}

// ValidTag reports whether id can be used as a response tag
func ValidTag(id int64) bool {
	return id > 0 && id != constants.RESERVED_TAG
}

// NewRequest builds file transfer request for requester
func NewRequest(requester, priority int32, filename string) (*Message, error) {
	if len(filename) > constants.MAXPAYLOAD-1 {
		return nil, fmt.Errorf("%w: filename of %d bytes", ErrPayloadTooLarge, len(filename))
	}
	msg := &Message{
		Header: Header{
			Tag:           constants.RESERVED_TAG,
			PayloadLength: int32(len(filename)),
			RequesterID:   requester,
			Priority:      priority,
		},
	}
	copy(msg.Payload[:], filename)

	if err := msg.ValidateRequest(); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewChunk builds a response record carrying file data
func NewChunk(tag int64, priority int32, data []byte) (*Message, error) {
	// One slot stays free for the terminator.
	if len(data) > constants.MAXPAYLOAD-1 {
		return nil, fmt.Errorf("%w: chunk of %d bytes", ErrPayloadTooLarge, len(data))
	}
	msg := &Message{
		Header: Header{
			Tag:           tag,
			PayloadLength: int32(len(data)),
			RequesterID:   int32(tag),
			Priority:      priority,
		},
		Status: status.OK,
	}
	copy(msg.Payload[:], data)
	return msg, nil
}

// NewSentinel builds the last record of a transfer. Data over capacity is truncated.
func NewSentinel(tag int64, code int32, data []byte) *Message {
	limit := constants.MAXPAYLOAD - 1
	if code != status.OK {
		// Error text stays NUL terminated ahead of the status byte.
		limit--
	}
	if len(data) > limit {
		data = data[:limit]
	}
	msg := &Message{
		Header: Header{
			Tag:           tag,
			PayloadLength: int32(len(data)),
			RequesterID:   int32(tag),
			Priority:      constants.SENTINEL_PRIORITY,
		},
		Status: code,
	}
	copy(msg.Payload[:], data)
	return msg
}

// Data returns meaningful payload bytes
func (m *Message) Data() []byte {
	n := int(m.PayloadLength)
	if n < 0 {
		n = 0
	} else if n > constants.MAXPAYLOAD {
		n = constants.MAXPAYLOAD
	}
	return m.Payload[:n]
}

// Filename returns the requested file of a request record
func (m *Message) Filename() string {
	return string(m.Data())
}

// IsSentinel reports whether this record ends its transfer
func (m *Message) IsSentinel() bool {
	return m.Priority == constants.SENTINEL_PRIORITY
}

// ValidateRequest checks that a request can be served
func (m *Message) ValidateRequest() error {
	if m.Tag != constants.RESERVED_TAG {
		return classify(ErrInvalidRequest, "tag %d is not the request tag", m.Tag)
	}
	if !ValidTag(int64(m.RequesterID)) {
		return classify(ErrInvalidRequest, "requester %d cannot be addressed", m.RequesterID)
	}
	if m.Priority < 1 || m.Priority > constants.MAX_PRIORITY {
		return classify(ErrInvalidRequest, "priority %d outside 1..%d", m.Priority, constants.MAX_PRIORITY)
	}
	if m.PayloadLength < 1 || m.PayloadLength > constants.MAXPAYLOAD-1 {
		return classify(ErrInvalidRequest, "filename length %d", m.PayloadLength)
	}
	if bytes.IndexByte(m.Data(), 0) >= 0 {
		return classify(ErrInvalidRequest, "filename contains NUL")
	}
	return nil
}

// Clone returns a copy that shares nothing with m
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// MessageToBytes encodes message to slice of bytes
func MessageToBytes(msg *Message) ([]byte, error) {
	if msg.PayloadLength < 0 || msg.PayloadLength > constants.MAXPAYLOAD {
		return nil, fmt.Errorf("%w: payload length %d", ErrMalformedRecord, msg.PayloadLength)
	}
	if msg.Status < 0 || msg.Status > 0xff {
		return nil, fmt.Errorf("%w: status %d", ErrMalformedRecord, msg.Status)
	}

	r := record{Header: msg.Header, Payload: msg.Payload}
	if msg.Status != status.OK {
		if msg.PayloadLength > statusSlot {
			return nil, fmt.Errorf("%w: no room for status %d", ErrMalformedRecord, msg.Status)
		}
		r.Payload[statusSlot] = byte(msg.Status)
	}

	buffer := bytes.NewBuffer(make([]byte, 0, RecordSize))
	err := binary.Write(buffer, binary.LittleEndian, &r)
	return buffer.Bytes(), err
}

// DecodeMessage decodes slice of bytes to Message
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) != RecordSize {
		return nil, fmt.Errorf("%w: record is %d bytes, expected %d", ErrMalformedRecord, len(data), RecordSize)
	}

	var r record
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &r); err != nil {
		return nil, err
	}
	if r.PayloadLength < 0 || r.PayloadLength > constants.MAXPAYLOAD {
		return nil, fmt.Errorf("%w: payload length %d", ErrMalformedRecord, r.PayloadLength)
	}

	msg := &Message{Header: r.Header, Payload: r.Payload}
	if msg.PayloadLength <= statusSlot {
		msg.Status = int32(msg.Payload[statusSlot])
		msg.Payload[statusSlot] = 0
	}
	return msg, nil
}
