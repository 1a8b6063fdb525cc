// Package client implements the registration lifecycle of the inventory
// client.
//
// The Client owns the ClientState and the register_called flag. It hands
// the resource tree to a connector.Connector, receives the transport's
// callbacks as a connector.Handler, and turns value changes of observable
// resources into notifications while registered.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/m2m-inventory/pkg/connector"
	"github.com/mash-protocol/m2m-inventory/pkg/log"
	"github.com/mash-protocol/m2m-inventory/pkg/model"
	"github.com/mash-protocol/m2m-inventory/pkg/notify"
)

// Client errors.
var (
	ErrConnectionInit     = errors.New("network initialization failed")
	ErrSetupFailed        = errors.New("client setup failed")
	ErrRunFinished        = errors.New("run finished")
	ErrAlreadyRegistering = errors.New("register already called")
	ErrInvalidTransition  = errors.New("invalid state transition")
)

// NetworkFunc brings up the network before registration.
type NetworkFunc func(ctx context.Context) error

// Config configures a Client.
type Config struct {
	// Logger is used for operational logging. Nil disables it.
	Logger *slog.Logger

	// EventLogger receives lifecycle and notification events.
	EventLogger log.Logger

	// Tracker records notification outcomes. Nil creates one.
	Tracker *notify.Tracker

	// Network is called by Register before setup (optional).
	Network NetworkFunc
}

// ErrorReport is the most recent protocol error.
type ErrorReport struct {
	ErrorClass
	Description string
	Time        time.Time
}

// Client is the lifecycle state machine.
type Client struct {
	tree    *model.Tree
	conn    connector.Connector
	config  Config
	events  log.Logger
	tracker *notify.Tracker

	mu             sync.Mutex
	state          State
	registerCalled bool
	finished       bool
	sessionID      string
	endpoint       connector.EndpointInfo
	uniqueID       uint32
	lastError      *ErrorReport
	onStateChange  func(oldState, newState State)

	registered     chan struct{}
	registeredOnce sync.Once
	done           chan struct{}
	doneOnce       sync.Once
	closeOnce      sync.Once
	closeErr       error
}

// New creates a client for tree over conn.
func New(tree *model.Tree, conn connector.Connector, config Config) *Client {
	tracker := config.Tracker
	if tracker == nil {
		tracker = notify.NewTracker()
	}
	c := &Client{
		tree:       tree,
		conn:       conn,
		config:     config,
		events:     log.OrNoop(config.EventLogger),
		tracker:    tracker,
		state:      StateUnregistered,
		registered: make(chan struct{}),
		done:       make(chan struct{}),
	}
	tree.OnChange(c.valueChanged)
	return c
}

// Register initiates registration (call_register). On success the client
// is REGISTERING and RegisterCalled returns true; OnRegistered or OnError
// follows from the transport. Setup errors are fatal for the run.
func (c *Client) Register(ctx context.Context) error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return ErrRunFinished
	}
	if c.registerCalled || c.state != StateUnregistered {
		c.mu.Unlock()
		return ErrAlreadyRegistering
	}
	c.mu.Unlock()

	if c.config.Network != nil {
		if err := c.config.Network(ctx); err != nil {
			c.logError("network initialization", err)
			return fmt.Errorf("%w: %v", ErrConnectionInit, err)
		}
	}

	c.tree.Seal()
	resources := c.tree.Resources()

	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return ErrRunFinished
	}
	if c.registerCalled {
		c.mu.Unlock()
		return ErrAlreadyRegistering
	}
	c.state = StateRegistering
	c.registerCalled = true
	c.sessionID = uuid.NewString()
	c.mu.Unlock()
	c.announce(StateUnregistered, StateRegistering, "register called")

	if err := c.conn.Setup(ctx, resources, c); err != nil {
		c.mu.Lock()
		from := c.state
		c.state = StateUnregistered
		c.registerCalled = false
		c.mu.Unlock()
		c.announce(from, StateUnregistered, "setup failed")
		c.logError("client setup", err)
		return fmt.Errorf("%w: %v", ErrSetupFailed, err)
	}

	c.infoLog("Registering client", "resources", len(resources))
	return nil
}

// Close ends the run: the client becomes UNREGISTERED, RegisterCalled
// turns false and the connector is closed. Close is idempotent and may be
// called from a resource write handler.
func (c *Client) Close() error {
	c.finish("closed")
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// finish moves to UNREGISTERED and clears register_called.
func (c *Client) finish(reason string) {
	c.mu.Lock()
	from := c.state
	c.state = StateUnregistered
	c.registerCalled = false
	c.finished = true
	c.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })
	if from != StateUnregistered {
		c.announce(from, StateUnregistered, reason)
	}
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RegisterCalled reports whether registration was initiated and the run
// has not ended. The simulator loop runs only while it is true.
func (c *Client) RegisterCalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerCalled
}

// Registered is closed when the client first reaches REGISTERED.
func (c *Client) Registered() <-chan struct{} { return c.registered }

// Done is closed when the run ends (Close or OnUnregistered).
func (c *Client) Done() <-chan struct{} { return c.done }

// UniqueID returns the endpoint fingerprint (0 before registration).
func (c *Client) UniqueID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uniqueID
}

// Endpoint returns the registered endpoint identity.
func (c *Client) Endpoint() connector.EndpointInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// SessionID identifies the current run in event logs.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// LastError returns the most recent protocol error.
func (c *Client) LastError() (ErrorReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastError == nil {
		return ErrorReport{}, false
	}
	return *c.lastError, true
}

// Tracker returns the notification tracker.
func (c *Client) Tracker() *notify.Tracker { return c.tracker }

// Tree returns the resource tree.
func (c *Client) Tree() *model.Tree { return c.tree }

// OnStateChange sets a callback for state changes.
func (c *Client) OnStateChange(fn func(oldState, newState State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// UniqueID sums the bytes of an internal endpoint name. It is a
// reproducible fingerprint, not a hash.
func UniqueID(internalName string) uint32 {
	var sum uint32
	for i := 0; i < len(internalName); i++ {
		sum += uint32(internalName[i])
	}
	return sum
}

// announce reports a transition that already happened.
func (c *Client) announce(from, to State, reason string) {
	c.mu.Lock()
	fn := c.onStateChange
	sid := c.sessionID
	ep := c.endpoint.EndpointName
	c.mu.Unlock()

	c.debugLog("client: state change", "from", from, "to", to, "reason", reason)
	c.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sid,
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		Endpoint:  ep,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
	if fn != nil {
		fn(from, to)
	}
}

func (c *Client) logError(where string, err error) {
	if c.config.Logger != nil {
		c.config.Logger.Error("Client error", "context", where, "error", err)
	}
	c.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.SessionID(),
		Layer:     log.LayerClient,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: log.LayerClient, Message: err.Error(), Context: where},
	})
}

func (c *Client) infoLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, args...)
	}
}

// debugLog logs a debug message if logging is enabled.
func (c *Client) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}
