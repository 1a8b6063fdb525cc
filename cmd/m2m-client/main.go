// Command m2m-client runs the inventory device client against an
// in-process management service.
//
// The client registers, publishes the inventory catalogue and simulates a
// vending row until the service unregisters it, a protocol error ends the
// registration or the process is interrupted.
//
// Usage:
//
//	m2m-client [flags]
//
// Flags:
//
//	-config string       Configuration file path (YAML)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-event-log string    Write protocol events to this CBOR file
//	-history string      Record values and statuses in this SQLite database
//	-identity string     Endpoint identity file
//	-interactive         Start the interactive console
//	-seed int            Random seed (0 seeds from the clock)
//	-mdns                Advertise the endpoint over mDNS while registered
//
// Examples:
//
//	# Run with defaults, logging to stderr
//	m2m-client
//
//	# Reproducible run with an event file for m2m-log
//	m2m-client -seed 42 -event-log events.cbor
//
//	# Drive the client by hand
//	m2m-client -interactive -history history.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mash-protocol/m2m-inventory/cmd/m2m-client/interactive"
	"github.com/mash-protocol/m2m-inventory/internal/config"
	"github.com/mash-protocol/m2m-inventory/pkg/connector"
	"github.com/mash-protocol/m2m-inventory/pkg/credentials"
	"github.com/mash-protocol/m2m-inventory/pkg/discovery"
	"github.com/mash-protocol/m2m-inventory/pkg/history"
	"github.com/mash-protocol/m2m-inventory/pkg/log"
	"github.com/mash-protocol/m2m-inventory/pkg/node"
)

// flags holds the command-line values. Only flags that were set override
// the configuration file.
type flags struct {
	ConfigFile   string
	LogLevel     string
	EventLog     string
	HistoryDB    string
	IdentityFile string
	Interactive  bool
	Seed         int64
	MDNS         bool
}

var cli flags

func init() {
	flag.StringVar(&cli.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&cli.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&cli.EventLog, "event-log", "", "Write protocol events to this CBOR file")
	flag.StringVar(&cli.HistoryDB, "history", "", "Record values and statuses in this SQLite database")
	flag.StringVar(&cli.IdentityFile, "identity", "", "Endpoint identity file")
	flag.BoolVar(&cli.Interactive, "interactive", false, "Start the interactive console")
	flag.Int64Var(&cli.Seed, "seed", 0, "Random seed (0 seeds from the clock)")
	flag.BoolVar(&cli.MDNS, "mdns", false, "Advertise the endpoint over mDNS while registered")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set explicitly.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cli.ConfigFile != "" {
		loaded, err := config.Load(cli.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.LogLevel = cli.LogLevel
		case "event-log":
			cfg.EventLog = cli.EventLog
		case "history":
			cfg.HistoryDB = cli.HistoryDB
		case "identity":
			cfg.IdentityFile = cli.IdentityFile
		case "interactive":
			cfg.Interactive = cli.Interactive
		case "seed":
			cfg.Seed = cli.Seed
		case "mdns":
			cfg.MDNS.Enabled = cli.MDNS
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	level, _ := config.ParseLevel(cfg.LogLevel)
	logOut := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	events, closeEvents, err := openEventLoggers(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	store := credentials.NewStore(cfg.IdentityFile)
	identity, err := store.EnsureIdentity()
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}
	logger.Info("M2M inventory client", "endpoint", identity.EndpointName)

	lb := connector.NewLoopback(connector.LoopbackConfig{
		EndpointName:   identity.EndpointName,
		RegisterDelay:  cfg.Loopback.RegisterDelay,
		DeliveryDelay:  cfg.Loopback.DeliveryDelay,
		QueueSize:      cfg.Loopback.QueueSize,
		NonConfirmable: !cfg.Loopback.IsConfirmable(),
		Logger:         logger,
		EventLogger:    events.logger,
	})

	var announcer *discovery.Announcer
	if cfg.MDNS.Enabled {
		advCfg := discovery.DefaultAdvertiserConfig()
		advCfg.Interface = cfg.MDNS.Interface
		advCfg.Port = uint16(cfg.MDNS.Port)
		announcer = discovery.NewAnnouncer(discovery.NewMDNSAdvertiser(advCfg), logger)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Debug("random seed", "seed", seed)

	n, err := node.New(lb, node.Config{
		Rand:            rand.New(rand.NewSource(seed)),
		Credentials:     store,
		Announcer:       announcer,
		RefillOnRestock: cfg.Inventory.RefillOnRestock,
		Logger:          logger,
		EventLogger:     events.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer n.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Interactive {
		console, err := interactive.New(n, lb, events.history)
		if err != nil {
			return err
		}
		logOut.Set(console.Stderr())
		defer logOut.Set(os.Stderr)
		go console.Run(ctx, cancel)
	}

	err = n.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutting down...")
		err = nil
	}

	n.Close()
	select {
	case <-lb.Done():
	case <-time.After(5 * time.Second):
		logger.Warn("connector did not stop in time")
	}
	return err
}

// eventSinks holds the configured protocol event consumers.
type eventSinks struct {
	logger  log.Logger
	history *history.Recorder
}

// openEventLoggers builds the event logger chain: the CBOR file, the
// history database and a debug-level slog adapter.
func openEventLoggers(cfg *config.Config, logger *slog.Logger) (eventSinks, func(), error) {
	var (
		sinks   eventSinks
		loggers []log.Logger
		closers []io.Closer
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}

	if cfg.EventLog != "" {
		fl, err := log.NewFileLogger(cfg.EventLog)
		if err != nil {
			return sinks, nil, fmt.Errorf("failed to open event log: %w", err)
		}
		loggers = append(loggers, fl)
		closers = append(closers, fl)
		logger.Info("Writing protocol events", "path", fl.Path())
	}

	if cfg.HistoryDB != "" {
		rec, err := history.Open(cfg.HistoryDB, logger)
		if err != nil {
			closeAll()
			return sinks, nil, fmt.Errorf("failed to open history: %w", err)
		}
		sinks.history = rec
		loggers = append(loggers, rec)
		closers = append(closers, rec)
	}

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	if len(loggers) > 0 {
		sinks.logger = log.NewMultiLogger(loggers...)
	}
	return sinks, closeAll, nil
}
