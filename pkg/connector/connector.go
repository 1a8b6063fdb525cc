// Package connector defines the contract between the client and the device
// management transport, and a Loopback transport that plays the
// management service in-process.
//
// The transport owns one callback goroutine. Every Handler method is
// invoked on it, including remote operations and notification statuses.
package connector

import (
	"context"

	"github.com/mash-protocol/m2m-inventory/pkg/model"
)

// EndpointInfo identifies the registered endpoint.
type EndpointInfo struct {
	// EndpointName is the name the endpoint registered with.
	EndpointName string

	// InternalEndpointName is the name assigned by the service.
	InternalEndpointName string
}

// Handler receives transport events.
type Handler interface {
	// OnRegistered is called once registration completed.
	OnRegistered()

	// OnUnregistered is called after deregistration or Close.
	OnUnregistered()

	// OnError reports a protocol error. The transport does not retry.
	OnError(code ErrorCode)

	// OnNotifyStatus reports the outcome of a notification or an observer
	// change on the resource at addr.
	OnNotifyStatus(addr model.Address, status model.NotifyStatus)

	// Dispatch executes a remote GET, PUT or POST.
	Dispatch(op model.Operation, addr model.Address, payload model.Value) (model.Value, error)
}

// Connector is the device management transport.
type Connector interface {
	// Setup publishes resources and starts registration. Registration
	// completes asynchronously with Handler.OnRegistered or OnError.
	Setup(ctx context.Context, resources []*model.Resource, h Handler) error

	// Close deregisters. Handler.OnUnregistered follows asynchronously.
	Close() error

	// Notify sends the new value of an observable resource. A nil error
	// means exactly one terminal status will follow for it.
	Notify(addr model.Address, value model.Value) error

	// EndpointInfo returns the endpoint identity once registered.
	EndpointInfo() (EndpointInfo, bool)

	// ErrorDescription describes the most recent protocol error.
	ErrorDescription() string
}
