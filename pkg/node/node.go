// Package node assembles the inventory client: it builds the resource
// catalogue, connects the lifecycle client to a transport and runs the
// inventory simulator while registration is active.
//
// A Node is the single context object of a process. It owns every
// component; nothing in the client is global.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mash-protocol/m2m-inventory/pkg/client"
	"github.com/mash-protocol/m2m-inventory/pkg/connector"
	"github.com/mash-protocol/m2m-inventory/pkg/credentials"
	"github.com/mash-protocol/m2m-inventory/pkg/discovery"
	"github.com/mash-protocol/m2m-inventory/pkg/inventory"
	"github.com/mash-protocol/m2m-inventory/pkg/log"
	"github.com/mash-protocol/m2m-inventory/pkg/model"
	"github.com/mash-protocol/m2m-inventory/pkg/notify"
	"github.com/mash-protocol/m2m-inventory/pkg/pattern"
)

// Catalogue addresses.
var (
	ProductAddress      = model.NewAddress(10341, 0, 26341)
	CountAddress        = model.NewAddress(10341, 0, 26342)
	EmptyAddress        = model.NewAddress(10341, 0, 26343)
	UnregisterAddress   = model.NewAddress(5000, 0, 1)
	FactoryResetAddress = model.NewAddress(5000, 0, 2)
	PatternAddress      = model.NewAddress(3201, 0, 5853)
	BlinkAddress        = model.NewAddress(3201, 0, 5850)
)

// ProductCount is the number of distinct product ids.
const ProductCount = 5

// ErrRegistrationFailed is returned by Run when a protocol error ends the
// registration attempt before the client was registered.
var ErrRegistrationFailed = errors.New("registration failed")

// Config configures a Node.
type Config struct {
	// Rand drives the inventory and the product id. Required.
	Rand inventory.Rand

	// Sleeper performs the timed waits of the simulator and the LED.
	// Nil uses inventory.TimerSleeper.
	Sleeper inventory.Sleeper

	// LED is the blink actuator. Nil uses a pattern.LogLED.
	LED pattern.Actuator

	// Credentials is wiped by a factory reset (optional).
	Credentials *credentials.Store

	// Announcer advertises the endpoint while registered (optional).
	Announcer *discovery.Announcer

	// Network is called before registration (optional).
	Network client.NetworkFunc

	// RefillOnRestock refills the row when it is restocked.
	RefillOnRestock bool

	// Logger is used for operational logging. Nil disables it.
	Logger *slog.Logger

	// EventLogger receives protocol events.
	EventLogger log.Logger
}

// Resources holds the handles of the catalogue.
type Resources struct {
	Product      *model.Resource
	Count        *model.Resource
	Empty        *model.Resource
	Unregister   *model.Resource
	FactoryReset *model.Resource
	Pattern      *model.Resource
	Blink        *model.Resource
}

// Node is the assembled client.
type Node struct {
	config    Config
	tree      *model.Tree
	resources Resources
	client    *client.Client
	sim       *inventory.Simulator
	player    *pattern.Player

	// Blink playback outlives a single request; Close cancels it.
	playCtx    context.Context
	playCancel context.CancelFunc

	errored   chan struct{}
	erredOnce sync.Once
	closeOnce sync.Once

	mu          sync.Mutex
	resetResult error
	resetDone   bool
}

// New builds the catalogue and wires the components over conn.
func New(conn connector.Connector, config Config) (*Node, error) {
	if conn == nil {
		return nil, errors.New("connector is required")
	}
	if config.Rand == nil {
		return nil, errors.New("rand is required")
	}
	if config.Sleeper == nil {
		config.Sleeper = inventory.TimerSleeper{}
	}
	if config.LED == nil {
		config.LED = &pattern.LogLED{Logger: config.Logger}
	}

	n := &Node{
		config:  config,
		tree:    model.NewTree(),
		player:  pattern.NewPlayer(config.LED, config.Sleeper, config.Logger),
		errored: make(chan struct{}),
	}
	n.playCtx, n.playCancel = context.WithCancel(context.Background())

	state := inventory.NewState(config.Rand)
	product := int64(config.Rand.Intn(ProductCount))

	if err := n.buildCatalogue(state, product); err != nil {
		n.playCancel()
		return nil, fmt.Errorf("build catalogue: %w", err)
	}

	n.client = client.New(n.tree, conn, client.Config{
		Logger:      config.Logger,
		EventLogger: config.EventLogger,
		Tracker:     notify.NewTracker(),
		Network:     config.Network,
	})
	n.client.OnStateChange(n.stateChanged)

	sim, err := inventory.New(inventory.Config{
		Count:           n.resources.Count,
		Empty:           n.resources.Empty,
		State:           state,
		Rand:            config.Rand,
		Sleeper:         config.Sleeper,
		RefillOnRestock: config.RefillOnRestock,
		Logger:          config.Logger,
		EventLogger:     config.EventLogger,
	})
	if err != nil {
		n.playCancel()
		return nil, err
	}
	n.sim = sim

	n.infoLog("Inventory initialized",
		"max_stock", state.MaxStock,
		"sale_probability", state.SaleProbability,
		"product_id", product)
	return n, nil
}

func (n *Node) buildCatalogue(state inventory.State, product int64) error {
	status := notify.StatusLogger(n.config.Logger)

	specs := []struct {
		handle **model.Resource
		spec   model.ResourceSpec
	}{
		{&n.resources.Product, model.ResourceSpec{
			Address: ProductAddress,
			Name:    "product_id",
			Type:    model.DataTypeInteger,
			Access:  model.OpGet,
			Initial: model.IntValue(product),
		}},
		{&n.resources.Count, model.ResourceSpec{
			Address:        CountAddress,
			Name:           "product_current_count",
			Type:           model.DataTypeInteger,
			Access:         model.OpGet,
			Observable:     true,
			Initial:        model.IntValue(int64(state.Count)),
			OnNotifyStatus: status,
		}},
		{&n.resources.Empty, model.ResourceSpec{
			Address:        EmptyAddress,
			Name:           "is_empty",
			Type:           model.DataTypeInteger,
			Access:         model.OpGet,
			Observable:     true,
			Initial:        model.IntValue(0),
			OnNotifyStatus: status,
		}},
		{&n.resources.Unregister, model.ResourceSpec{
			Address: UnregisterAddress,
			Name:    "unregister",
			Type:    model.DataTypeString,
			Access:  model.OpPost,
			OnWrite: n.onUnregister,
		}},
		{&n.resources.FactoryReset, model.ResourceSpec{
			Address: FactoryResetAddress,
			Name:    "factory_reset",
			Type:    model.DataTypeString,
			Access:  model.OpPost,
			OnWrite: n.onFactoryReset,
		}},
		{&n.resources.Pattern, model.ResourceSpec{
			Address: PatternAddress,
			Name:    "pattern",
			Type:    model.DataTypeString,
			Access:  model.OpPut,
			Initial: model.StringValue(pattern.DefaultPattern),
			OnWrite: n.onPatternUpdated,
		}},
		{&n.resources.Blink, model.ResourceSpec{
			Address: BlinkAddress,
			Name:    "blink",
			Type:    model.DataTypeString,
			Access:  model.OpPost,
			OnWrite: n.onBlink,
		}},
	}

	for _, s := range specs {
		r, err := n.tree.Add(s.spec)
		if err != nil {
			return err
		}
		*s.handle = r
	}
	return nil
}

// Run registers, waits for the registration outcome and then runs the
// simulator until registration ends. It returns nil when the run ended
// normally (unregister, factory reset or Close).
func (n *Node) Run(ctx context.Context) error {
	if err := n.client.Register(ctx); err != nil {
		return err
	}

	select {
	case <-n.client.Registered():
	case <-n.client.Done():
		return nil
	case <-n.errored:
		report, _ := n.client.LastError()
		return fmt.Errorf("%w: %s", ErrRegistrationFailed, report.Name)
	case <-ctx.Done():
		return ctx.Err()
	}

	n.infoLog("Inventory loop started")
	err := n.sim.Run(ctx, n.client)
	stats := n.sim.Stats()
	n.infoLog("Inventory loop stopped",
		"cycles", stats.Cycles,
		"sales", stats.Sales,
		"returns", stats.Returns,
		"restocks", stats.Restocks)
	return err
}

// Close ends the run and stops background work. It is idempotent.
func (n *Node) Close() error {
	err := n.client.Close()
	n.closeOnce.Do(func() {
		n.playCancel()
		n.player.Wait()
		if n.config.Announcer != nil {
			if werr := n.config.Announcer.Withdraw(); werr != nil {
				n.warnLog("Failed to withdraw announcement", "error", werr)
			}
		}
	})
	return err
}

// Client returns the lifecycle client.
func (n *Node) Client() *client.Client { return n.client }

// Tree returns the resource catalogue.
func (n *Node) Tree() *model.Tree { return n.tree }

// Resources returns the catalogue handles.
func (n *Node) Resources() Resources { return n.resources }

// Simulator returns the inventory simulator.
func (n *Node) Simulator() *inventory.Simulator { return n.sim }

// Player returns the blink pattern player.
func (n *Node) Player() *pattern.Player { return n.player }

// FactoryResetResult reports whether a factory reset ran and its outcome.
func (n *Node) FactoryResetResult() (ran bool, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetDone, n.resetResult
}

// stateChanged follows the lifecycle for the announcement and the
// registration outcome. It runs on the transport's callback goroutine.
func (n *Node) stateChanged(from, to client.State) {
	switch to {
	case client.StateRegistered:
		n.announce()
	case client.StateUnregisteredAfterError:
		n.erredOnce.Do(func() { close(n.errored) })
	}
	if from == client.StateRegistered && to != client.StateRegistered && n.config.Announcer != nil {
		if err := n.config.Announcer.Withdraw(); err != nil {
			n.warnLog("Failed to withdraw announcement", "error", err)
		}
	}
}

func (n *Node) announce() {
	if n.config.Announcer == nil {
		return
	}
	ep := n.client.Endpoint()
	rec := &discovery.EndpointRecord{
		EndpointName:         ep.EndpointName,
		InternalEndpointName: ep.InternalEndpointName,
		UniqueID:             n.client.UniqueID(),
		ProductID:            n.resources.Product.Value().Int(),
		HasProduct:           true,
	}
	if err := n.config.Announcer.Announce(n.playCtx, rec); err != nil {
		n.warnLog("Failed to announce endpoint", "error", err)
	}
}

func (n *Node) onUnregister(_ *model.Resource, _ model.Operation, _ model.Value) {
	n.infoLog("Unregister resource executed")
	if err := n.client.Close(); err != nil {
		n.warnLog("Unregister failed", "error", err)
	}
}

func (n *Node) onFactoryReset(_ *model.Resource, _ model.Operation, _ model.Value) {
	n.infoLog("Factory reset resource executed")
	if err := n.client.Close(); err != nil {
		n.warnLog("Close before factory reset failed", "error", err)
	}

	var err error
	if n.config.Credentials == nil {
		err = errors.New("no credential store")
	} else {
		err = n.config.Credentials.FactoryReset()
	}

	n.mu.Lock()
	n.resetDone = true
	n.resetResult = err
	n.mu.Unlock()

	if err != nil {
		if n.config.Logger != nil {
			n.config.Logger.Error("Failed to do factory reset", "error", err)
		}
		return
	}
	n.infoLog("Factory reset completed. Now restart the device")
}

func (n *Node) onPatternUpdated(r *model.Resource, _ model.Operation, _ model.Value) {
	n.infoLog("PUT received", "resource", r.Address().String(), "value", r.Value().Str())
}

func (n *Node) onBlink(_ *model.Resource, _ model.Operation, _ model.Value) {
	p := n.resources.Pattern.Value().Str()
	if err := n.player.Start(n.playCtx, p); err != nil {
		n.warnLog("Blink rejected", "pattern", p, "error", err)
	}
}

func (n *Node) infoLog(msg string, args ...any) {
	if n.config.Logger != nil {
		n.config.Logger.Info(msg, args...)
	}
}

func (n *Node) warnLog(msg string, args ...any) {
	if n.config.Logger != nil {
		n.config.Logger.Warn(msg, args...)
	}
}
