package server

import (
	"context"
	"go_msgq_copy/networking"
	"go_msgq_copy/networking/status"
	"go_msgq_copy/queue"
	"go_msgq_copy/server/worker"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Handler vets inbound requests and answers the ones that cannot be served
type Handler struct {
	queue queue.Queue
	log   *logrus.Entry
}

// validate checks request before a worker is spent on it
func (h *Handler) validate(req *networking.Message) error {
	return req.ValidateRequest()
}

// reject answers invalid request with a single error sentinel when its requester is addressable
func (h *Handler) reject(ctx context.Context, id uuid.UUID, req *networking.Message, reason error) worker.Outcome {
	out := worker.Outcome{
		ID:        id,
		Requester: req.RequesterID,
		File:      req.Filename(),
		Priority:  req.Priority,
		Status:    status.INVALIDREQUEST,
		Err:       reason,
	}

	l := h.log.WithFields(logrus.Fields{
		"transfer_id": id.String(),
		"requester":   req.RequesterID,
		"priority":    req.Priority,
		"error":       reason.Error(),
	})

	tag := int64(req.RequesterID)
	if !networking.ValidTag(tag) {
		// Nobody to answer.
		l.Warn("dropping request from unaddressable requester")
		return out
	}

	l.Warn("rejecting invalid request")
	sentinel := networking.NewSentinel(tag, status.INVALIDREQUEST, []byte(networking.Detail(reason)))
	if err := h.queue.Send(ctx, sentinel, true); err != nil {
		l.WithError(err).Error("could not deliver rejection")
		return out
	}
	out.Messages = 1
	return out
}
