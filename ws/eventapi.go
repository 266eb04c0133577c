package ws

import (
	"github.com/mqy/minichat/event"
)

const (
	// MaxBodyBytes is the longest message body accepted.
	MaxBodyBytes = 2048

	// maxMessages bounds the messages kept for reactions; the oldest are
	// forgotten first.
	maxMessages = 1000
)

func newInvalidArgumentError(req *event.ClientMsg, errs ...string) *event.Error {
	return &event.Error{
		Code:   event.ErrorCodeInvalidArguments,
		Params: errs,
		Req:    req,
	}
}

func newAlreadyExistsError(req *event.ClientMsg, err string) *event.Error {
	return &event.Error{
		Code:   event.ErrorCodeAlreadyExists,
		Params: []string{err},
		Req:    req,
	}
}

func newFailedPreconditionError(req *event.ClientMsg, err string) *event.Error {
	return &event.Error{
		Code:   event.ErrorCodeFailedPrecondition,
		Params: []string{err},
		Req:    req,
	}
}

// strip drops the request id from a copy of req, it travels on the
// enclosing ServerMsg.
func strip(req *event.ClientMsg) *event.ClientMsg {
	out := *req
	out.RequestId = ""
	return &out
}
