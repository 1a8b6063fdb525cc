package client

import (
	"fmt"
	"time"

	"github.com/mash-protocol/m2m-inventory/pkg/connector"
	"github.com/mash-protocol/m2m-inventory/pkg/log"
	"github.com/mash-protocol/m2m-inventory/pkg/model"
)

var _ connector.Handler = (*Client)(nil)

// OnRegistered moves REGISTERING -> REGISTERED, records the endpoint
// identity and releases Registered().
func (c *Client) OnRegistered() {
	info, ok := c.conn.EndpointInfo()

	c.mu.Lock()
	from := c.state
	if !CanTransition(from, StateRegistered) {
		c.mu.Unlock()
		c.rejectTransition(from, StateRegistered, "registered callback")
		return
	}
	c.state = StateRegistered
	if ok {
		c.endpoint = info
		c.uniqueID = UniqueID(info.InternalEndpointName)
	}
	uid := c.uniqueID
	c.mu.Unlock()

	c.registeredOnce.Do(func() { close(c.registered) })
	c.announce(from, StateRegistered, "registered")
	c.infoLog("Client registered",
		"endpoint", info.EndpointName,
		"internal_endpoint", info.InternalEndpointName,
		"unique_id", uid)
}

// OnUnregistered ends the run.
func (c *Client) OnUnregistered() {
	c.finish("unregistered")
	c.infoLog("Client unregistered")
}

// OnError classifies a protocol error and moves to
// UNREGISTERED_AFTER_ERROR.
func (c *Client) OnError(code connector.ErrorCode) {
	report := &ErrorReport{
		ErrorClass:  Classify(code),
		Description: c.conn.ErrorDescription(),
		Time:        time.Now(),
	}

	c.mu.Lock()
	c.lastError = report
	from := c.state
	allowed := CanTransition(from, StateUnregisteredAfterError)
	if allowed {
		c.state = StateUnregisteredAfterError
	}
	sid := c.sessionID
	c.mu.Unlock()

	if c.config.Logger != nil {
		c.config.Logger.Error("Error occurred",
			"error", report.Name,
			"code", int(code),
			"category", string(report.Category),
			"details", report.Description)
	}
	ci := int(code)
	c.events.Log(log.Event{
		Timestamp: report.Time,
		SessionID: sid,
		Layer:     log.LayerClient,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerClient,
			Message: report.Name,
			Code:    &ci,
			Context: string(report.Category),
		},
	})

	if !allowed {
		c.rejectTransition(from, StateUnregisteredAfterError, "error callback")
		return
	}
	c.announce(from, StateUnregisteredAfterError, report.Name)
}

// OnNotifyStatus records the status and forwards it to the resource's
// status callback.
func (c *Client) OnNotifyStatus(addr model.Address, status model.NotifyStatus) {
	c.tracker.Report(addr, status)

	c.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.SessionID(),
		Direction: log.DirectionIn,
		Layer:     log.LayerClient,
		Category:  log.CategoryNotification,
		Notification: &log.NotificationEvent{
			Path:   addr.String(),
			Status: status.String(),
		},
	})

	r, err := c.tree.Lookup(addr)
	if err != nil {
		c.debugLog("client: status for unknown resource", "resource", addr, "status", status)
		return
	}
	r.ReportStatus(status)
}

// Dispatch executes a remote operation on the tree.
func (c *Client) Dispatch(op model.Operation, addr model.Address, payload model.Value) (model.Value, error) {
	v, err := c.tree.Dispatch(op, addr, payload)
	if err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Warn("Rejected operation", "operation", op, "resource", addr, "error", err)
		}
		return v, err
	}
	c.debugLog("client: dispatched", "operation", op, "resource", addr, "value", v)
	return v, nil
}

// valueChanged turns a change of an observable resource into a
// notification while REGISTERED.
func (c *Client) valueChanged(r *model.Resource, v model.Value) {
	c.mu.Lock()
	registered := c.state == StateRegistered
	sid := c.sessionID
	c.mu.Unlock()

	c.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sid,
		Direction: log.DirectionOut,
		Layer:     log.LayerResource,
		Category:  log.CategoryNotification,
		Notification: &log.NotificationEvent{
			Path:  r.Address().String(),
			Value: v.Any(),
		},
	})

	if !registered {
		return
	}

	addr := r.Address()
	c.tracker.Begin(addr)
	if err := c.conn.Notify(addr, v); err != nil {
		// No status will follow from the transport.
		c.debugLog("client: notify failed", "resource", addr, "error", err)
		c.OnNotifyStatus(addr, model.StatusSendFailed)
	}
}

func (c *Client) rejectTransition(from, to State, trigger string) {
	err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	if c.config.Logger != nil {
		c.config.Logger.Warn("Ignored lifecycle callback", "trigger", trigger, "error", err)
	}
	c.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.SessionID(),
		Layer:     log.LayerClient,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: log.LayerClient, Message: err.Error(), Context: trigger},
	})
}
