package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mash-protocol/m2m-inventory/pkg/log"
	"github.com/mash-protocol/m2m-inventory/pkg/model"
	"github.com/mash-protocol/m2m-inventory/pkg/wire"
)

// Request performs a remote operation the way the management service
// would: the request travels as CBOR, is dispatched on the callback
// goroutine and answered with an encoded response.
//
// A zero MessageID is replaced with the next free id. Request must not be
// called from a Handler method.
func (l *Loopback) Request(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.handler == nil {
		l.mu.Unlock()
		return nil, ErrNotRegistered
	}
	if req.MessageID == wire.NotificationMessageID {
		l.msgID++
		req.MessageID = l.msgID
	}
	l.mu.Unlock()

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	result := make(chan []byte, 1)
	l.post(func() { result <- l.serve(data) })

	select {
	case out := <-result:
		return wire.DecodeResponse(out)
	case <-l.stopped:
		// The request may have closed the connector itself.
		select {
		case out := <-result:
			return wire.DecodeResponse(out)
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// serve decodes and dispatches one request on the callback goroutine.
func (l *Loopback) serve(data []byte) []byte {
	start := time.Now()

	resp := &wire.Response{}
	req, err := wire.DecodeRequest(data)
	if err != nil {
		resp.Status = wire.StatusBadRequest
		resp.Payload = err.Error()
		return l.encodeResponse(resp)
	}
	resp.MessageID = req.MessageID
	l.logMessage(log.DirectionIn, req, nil, 0)

	l.mu.Lock()
	registered := l.registered
	h := l.handler
	l.mu.Unlock()

	if !registered {
		resp.Status = wire.StatusUnavailable
	} else {
		resp.Status, resp.Payload = l.dispatch(h, req)
	}

	l.logMessage(log.DirectionOut, req, resp, time.Since(start))
	return l.encodeResponse(resp)
}

func (l *Loopback) dispatch(h Handler, req *wire.Request) (wire.Status, any) {
	var payload model.Value
	if req.Payload != nil {
		v, err := model.ValueOf(req.Payload)
		if err != nil {
			return wire.StatusBadRequest, err.Error()
		}
		payload = v
	}

	value, err := h.Dispatch(fromWireOp(req.Operation), toAddress(req.Path), payload)
	if err != nil {
		return statusForError(err), err.Error()
	}
	if req.Operation != wire.OpGet {
		return wire.StatusSuccess, nil
	}
	return wire.StatusSuccess, value.Any()
}

func (l *Loopback) encodeResponse(resp *wire.Response) []byte {
	out, err := wire.EncodeResponse(resp)
	if err != nil {
		out, _ = wire.EncodeResponse(&wire.Response{
			MessageID: resp.MessageID,
			Status:    wire.StatusInternalError,
			Payload:   fmt.Sprintf("encode response: %v", err),
		})
	}
	return out
}

func (l *Loopback) logMessage(dir log.Direction, req *wire.Request, resp *wire.Response, elapsed time.Duration) {
	msg := &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		MessageID: req.MessageID,
		Path:      req.Path.String(),
	}
	if resp == nil {
		op := req.Operation
		msg.Operation = &op
		msg.Payload = req.Payload
	} else {
		status := resp.Status
		msg.Type = log.MessageTypeResponse
		msg.Status = &status
		msg.Payload = resp.Payload
		msg.ProcessingTime = &elapsed
	}
	l.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: l.sessionID,
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Endpoint:  l.endpointName(),
		Message:   msg,
	})
}

// statusForError maps resource tree errors to response codes.
func statusForError(err error) wire.Status {
	switch {
	case errors.Is(err, model.ErrResourceNotFound):
		return wire.StatusNotFound
	case errors.Is(err, model.ErrAccessDenied):
		return wire.StatusMethodNotAllowed
	case errors.Is(err, model.ErrTypeMismatch), errors.Is(err, model.ErrInvalidOperation):
		return wire.StatusBadRequest
	default:
		return wire.StatusInternalError
	}
}

func fromWireOp(op wire.Operation) model.Operation {
	switch op {
	case wire.OpGet:
		return model.OpGet
	case wire.OpPut:
		return model.OpPut
	case wire.OpPost:
		return model.OpPost
	}
	return 0
}

// WireOperation converts a single model verb to its wire code.
func WireOperation(op model.Operation) (wire.Operation, error) {
	switch op {
	case model.OpGet:
		return wire.OpGet, nil
	case model.OpPut:
		return wire.OpPut, nil
	case model.OpPost:
		return wire.OpPost, nil
	}
	return 0, fmt.Errorf("%w: %s", model.ErrInvalidOperation, op)
}

// PathOf converts a resource address to a wire path.
func PathOf(addr model.Address) wire.Path {
	return toPath(addr)
}
