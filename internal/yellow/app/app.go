// Package app wires the bot together: storage, identities, the dispatcher,
// the Matrix transport and the optional HTTP API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/yellow/internal/yellow/bot"
	"github.com/bdobrica/yellow/internal/yellow/identity"
	"github.com/bdobrica/yellow/internal/yellow/matrix"
	"github.com/bdobrica/yellow/internal/yellow/portal"
	"github.com/bdobrica/yellow/internal/yellow/rooms"
	"github.com/bdobrica/yellow/internal/yellow/store"
)

// Config holds application configuration.
type Config struct {
	DatabasePath string
	// MasterKey seals stored portal sessions (32 bytes).
	MasterKey []byte
	// Matrix holds the account; its Rooms and State are filled from the
	// bindings file and the database.
	Matrix matrix.Config
	// RoomsFile is the path of the room bindings YAML file.
	RoomsFile string
	// Prefix starts messages addressed to the bot. Defaults to DefaultPrefix.
	Prefix string
	// HTTPAddr is the address of the HTTP API (e.g. ":8080"). Empty disables it.
	HTTPAddr string
	Portal   portal.Config
}

// App is the running bot.
type App struct {
	config     *Config
	store      *store.Store
	identities *identity.Store
	engine     *Engine
	matrix     *matrix.Client
	server     *Server
}

// New opens the database, applies the room bindings and builds every
// component. Nothing talks to the network until Run.
func New(config *Config) (*App, error) {
	bindings, err := rooms.Load(config.RoomsFile)
	if err != nil {
		return nil, err
	}

	db, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := bindings.Apply(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("room bindings applied", "rooms", len(bindings.Rooms))

	identities, err := identity.NewStore(db, config.MasterKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create identity store: %w", err)
	}

	engine := NewEngine(bot.NewDispatcher(bot.DefaultCommands()...), db, PortalProviders(config.Portal))

	mcfg := config.Matrix
	mcfg.Rooms = bindings.RoomIDs()
	mcfg.State = db
	matrixClient, err := matrix.New(&mcfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	var server *Server
	if config.HTTPAddr != "" {
		server = NewServer(config.HTTPAddr, db, identities, db, engine)
	}

	return &App{
		config:     config,
		store:      db,
		identities: identities,
		engine:     engine,
		matrix:     matrixClient,
		server:     server,
	}, nil
}

// Run starts the transports and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			slog.Warn("http server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	handler := NewMessageHandler(a.engine, a.identities, a.matrix, a.config.Prefix)
	if err := a.matrix.Start(ctx, handler); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	slog.Info("yellow is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the transports and closes the database.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	if a.server != nil {
		slog.Info("stopping http server")
		a.server.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}
