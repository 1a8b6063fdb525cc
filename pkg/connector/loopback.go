package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/m2m-inventory/pkg/log"
	"github.com/mash-protocol/m2m-inventory/pkg/model"
	"github.com/mash-protocol/m2m-inventory/pkg/wire"
)

// Loopback defaults.
const (
	DefaultQueueSize     = 8
	DefaultDeliveryDelay = 50 * time.Millisecond
)

// LoopbackConfig configures a Loopback.
type LoopbackConfig struct {
	// EndpointName is the endpoint identity. Empty means a random UUID.
	EndpointName string

	// RegisterDelay is the time between Setup and OnRegistered.
	RegisterDelay time.Duration

	// DeliveryDelay is the time a notification spends in the resend queue.
	DeliveryDelay time.Duration

	// QueueSize bounds the resend queue.
	QueueSize int

	// NonConfirmable reports SENT instead of DELIVERED.
	NonConfirmable bool

	// Logger is used for operational logging. Nil disables it.
	Logger *slog.Logger

	// EventLogger receives wire events. Nil disables capture.
	EventLogger log.Logger
}

type pendingNotification struct {
	seq   uint32
	addr  model.Address
	data  []byte
	timer *time.Timer
}

// Loopback is an in-process Connector. It registers after a delay, carries
// notifications through a bounded resend queue as CBOR, and accepts remote
// operations through Request.
type Loopback struct {
	config LoopbackConfig
	events log.Logger

	mu         sync.Mutex
	handler    Handler
	resources  map[model.Address]*model.Resource
	sessionID  string
	info       EndpointInfo
	registered bool
	closed     bool
	failed     bool
	lastError  string
	reject     bool
	seq        uint32
	msgID      uint32
	pending    map[uint32]*pendingNotification
	received   []wire.Notification
	regTimer   *time.Timer

	// Callback goroutine work queue.
	work      []func()
	finishing bool
	wake      chan struct{}
	stopped   chan struct{}
}

// NewLoopback creates a Loopback.
func NewLoopback(config LoopbackConfig) *Loopback {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.DeliveryDelay < 0 {
		config.DeliveryDelay = DefaultDeliveryDelay
	}
	return &Loopback{
		config:  config,
		events:  log.OrNoop(config.EventLogger),
		pending: make(map[uint32]*pendingNotification),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Setup publishes resources and schedules registration.
func (l *Loopback) Setup(ctx context.Context, resources []*model.Resource, h Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.handler != nil {
		return ErrAlreadySetup
	}

	l.resources = make(map[model.Address]*model.Resource, len(resources))
	for _, r := range resources {
		l.resources[r.Address()] = r
	}
	l.handler = h
	l.sessionID = uuid.NewString()

	name := l.config.EndpointName
	if name == "" {
		name = uuid.NewString()
	}

	go l.run()

	l.debugLog("loopback: setup", "resources", len(resources), "endpoint", name)
	l.regTimer = time.AfterFunc(l.config.RegisterDelay, func() {
		l.post(func() { l.completeRegistration(name) })
	})
	return nil
}

func (l *Loopback) completeRegistration(name string) {
	l.mu.Lock()
	if l.closed || l.failed {
		l.mu.Unlock()
		return
	}
	l.registered = true
	l.info = EndpointInfo{
		EndpointName:         name,
		InternalEndpointName: uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String(),
	}
	h := l.handler
	l.mu.Unlock()

	l.logState("", "REGISTERED", "")
	h.OnRegistered()
}

// Close deregisters. Queued notifications fail with SEND_FAILED before
// OnUnregistered is delivered. Close may be called from a Handler method.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.registered = false
	if l.regTimer != nil {
		l.regTimer.Stop()
	}
	h := l.handler
	if h == nil {
		l.mu.Unlock()
		close(l.stopped)
		return nil
	}

	for seq, p := range l.pending {
		p.timer.Stop()
		delete(l.pending, seq)
		l.postLocked(l.statusFunc(p.addr, seq, model.StatusSendFailed))
	}
	l.postLocked(func() {
		l.logState("REGISTERED", "UNREGISTERED", "closed")
		h.OnUnregistered()
	})
	l.finishing = true
	l.mu.Unlock()
	return nil
}

// Done is closed once the callback goroutine has delivered its final event.
func (l *Loopback) Done() <-chan struct{} {
	return l.stopped
}

// Notify queues a notification for addr.
func (l *Loopback) Notify(addr model.Address, value model.Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if !l.registered {
		return ErrNotRegistered
	}
	if _, ok := l.resources[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, addr)
	}

	l.seq++
	seq := l.seq

	if len(l.pending) >= l.config.QueueSize {
		l.postLocked(l.statusFunc(addr, seq, model.StatusResendQueueFull))
		return nil
	}

	data, err := wire.EncodeNotification(&wire.Notification{
		Sequence: seq,
		Path:     toPath(addr),
		Value:    value.Any(),
	})
	if err != nil {
		l.debugLog("loopback: encode notification failed", "resource", addr, "error", err)
		l.postLocked(l.statusFunc(addr, seq, model.StatusBuildError))
		return nil
	}

	l.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: l.sessionID,
		Direction: log.DirectionOut,
		Layer:     log.LayerWire,
		Category:  log.CategoryNotification,
		Endpoint:  l.info.EndpointName,
		Notification: &log.NotificationEvent{
			Path:     addr.String(),
			Sequence: seq,
			Value:    value.Any(),
		},
	})

	p := &pendingNotification{seq: seq, addr: addr, data: data}
	p.timer = time.AfterFunc(l.config.DeliveryDelay, func() {
		l.post(func() { l.deliver(seq) })
	})
	l.pending[seq] = p
	return nil
}

// deliver plays the service side of a queued notification.
func (l *Loopback) deliver(seq uint32) {
	l.mu.Lock()
	p, ok := l.pending[seq]
	if !ok {
		// Already failed by Close.
		l.mu.Unlock()
		return
	}
	delete(l.pending, seq)
	reject := l.reject
	l.mu.Unlock()

	status := model.StatusDelivered
	if l.config.NonConfirmable {
		status = model.StatusSent
	}

	n, err := wire.DecodeNotification(p.data)
	switch {
	case err != nil:
		l.debugLog("loopback: service could not decode notification", "error", err)
		status = model.StatusSendFailed
	case reject:
		status = model.StatusSendFailed
	default:
		l.mu.Lock()
		l.received = append(l.received, *n)
		l.mu.Unlock()
	}

	l.reportStatus(p.addr, seq, status)
}

// Observe simulates the service subscribing to addr.
func (l *Loopback) Observe(addr model.Address) error {
	return l.setObserved(addr, model.StatusSubscribed)
}

// CancelObserve simulates the service unsubscribing from addr.
func (l *Loopback) CancelObserve(addr model.Address) error {
	return l.setObserved(addr, model.StatusUnsubscribed)
}

func (l *Loopback) setObserved(addr model.Address, status model.NotifyStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if !l.registered {
		return ErrNotRegistered
	}
	r, ok := l.resources[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, addr)
	}
	if !r.Observable() {
		return fmt.Errorf("%w: %s", ErrNotObservable, addr)
	}
	l.postLocked(l.statusFunc(addr, 0, status))
	return nil
}

// InjectError simulates a protocol error. The endpoint loses its
// registration and the transport does not retry.
func (l *Loopback) InjectError(code ErrorCode) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.handler == nil {
		return ErrNotRegistered
	}
	h := l.handler
	l.failed = true
	if l.regTimer != nil {
		l.regTimer.Stop()
	}
	l.postLocked(func() {
		l.mu.Lock()
		l.registered = false
		l.lastError = fmt.Sprintf("%s (%d)", code, int(code))
		l.mu.Unlock()

		c := int(code)
		l.events.Log(log.Event{
			Timestamp: time.Now(),
			SessionID: l.sessionID,
			Direction: log.DirectionIn,
			Layer:     log.LayerWire,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerWire, Message: code.String(), Code: &c},
		})
		h.OnError(code)
	})
	return nil
}

// RejectNotifications makes the service side reject (true) or accept
// (false) subsequent notifications.
func (l *Loopback) RejectNotifications(reject bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reject = reject
}

// EndpointInfo returns the endpoint identity once registered.
func (l *Loopback) EndpointInfo() (EndpointInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info, l.info.EndpointName != ""
}

// ErrorDescription describes the most recent injected error.
func (l *Loopback) ErrorDescription() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastError == "" {
		return "no error"
	}
	return l.lastError
}

// Received returns the notifications accepted by the service side, in
// delivery order.
func (l *Loopback) Received() []wire.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]wire.Notification, len(l.received))
	copy(out, l.received)
	return out
}

// Pending returns the number of notifications in the resend queue.
func (l *Loopback) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Registered returns true while the endpoint is registered.
func (l *Loopback) Registered() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registered
}

// post queues fn for the callback goroutine.
func (l *Loopback) post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.postLocked(fn)
}

// postLocked is post with l.mu held. Work posted after Close is dropped.
func (l *Loopback) postLocked(fn func()) {
	if l.finishing {
		return
	}
	l.work = append(l.work, fn)
	l.signal()
}

func (l *Loopback) statusFunc(addr model.Address, seq uint32, status model.NotifyStatus) func() {
	return func() { l.reportStatus(addr, seq, status) }
}

func (l *Loopback) reportStatus(addr model.Address, seq uint32, status model.NotifyStatus) {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()

	l.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: l.sessionID,
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryNotification,
		Notification: &log.NotificationEvent{
			Path:     addr.String(),
			Sequence: seq,
			Status:   status.String(),
		},
	})
	h.OnNotifyStatus(addr, status)
}

func (l *Loopback) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// run is the callback goroutine.
func (l *Loopback) run() {
	defer close(l.stopped)
	for range l.wake {
		for {
			l.mu.Lock()
			if len(l.work) == 0 {
				done := l.finishing
				l.mu.Unlock()
				if done {
					return
				}
				break
			}
			fn := l.work[0]
			l.work = l.work[1:]
			l.mu.Unlock()
			fn()
		}
	}
}

func (l *Loopback) logState(oldState, newState, reason string) {
	l.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: l.sessionID,
		Layer:     log.LayerWire,
		Category:  log.CategoryState,
		Endpoint:  l.endpointName(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (l *Loopback) endpointName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info.EndpointName
}

// debugLog logs a debug message if logging is enabled.
func (l *Loopback) debugLog(msg string, args ...any) {
	if l.config.Logger != nil {
		l.config.Logger.Debug(msg, args...)
	}
}

func toPath(addr model.Address) wire.Path {
	return wire.Path{ObjectID: addr.ObjectID, InstanceID: addr.InstanceID, ResourceID: addr.ResourceID}
}

func toAddress(p wire.Path) model.Address {
	return model.NewAddress(p.ObjectID, p.InstanceID, p.ResourceID)
}
