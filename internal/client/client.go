// Package client wires configuration into a ready-to-use category
// engine: local store, remote adapter, queue, drainer and manager.
package client

import (
	"context"

	"github.com/mdelaney/catsync/internal/config"
	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/manager"
	"github.com/mdelaney/catsync/internal/registry"
	"github.com/mdelaney/catsync/internal/remote"
	"github.com/mdelaney/catsync/internal/store"
	"github.com/mdelaney/catsync/internal/syncq"
)

// Client provides the high-level API for category operations.
type Client struct {
	Manager *manager.Manager
	Drainer *syncq.Drainer
	Bus     *events.Bus

	config       *config.Config
	logger       *events.Logger
	local        store.Store
	remote       remote.Remote
	connectivity *remote.ConnectivityWatcher

	cancel context.CancelFunc
}

// New builds a client from config. A failed database open falls back
// to an in-memory store so the engine still works for this process.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	var local store.Store
	sqlStore, err := store.NewSQLiteStore(cfg.Storage.DBFile, logger)
	if err != nil {
		logger.WithError(err).Warn("Durable store unavailable; using in-memory store")
		local = store.NewMemoryStore()
	} else {
		local = sqlStore
	}

	var rem remote.Remote
	var connectivity *remote.ConnectivityWatcher
	if !cfg.Remote.Offline {
		rem = remote.NewHTTPRemote(&cfg.Remote, logger)
		connectivity = remote.NewConnectivityWatcher(cfg.Remote.BaseURL, cfg.Remote.Token, logger)
	}

	queue, err := syncq.NewQueue(context.Background(), local, logger)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logger)
	reg := registry.New()

	mgr := manager.New(manager.Deps{
		Local:      local,
		Remote:     rem,
		Queue:      queue,
		Registry:   reg,
		Bus:        bus,
		Logger:     logger,
		LegacyFile: cfg.Storage.LegacyFile,
	})

	drainer := syncq.NewDrainer(queue, rem, &cfg.Sync, logger)

	return &Client{
		Manager:      mgr,
		Drainer:      drainer,
		Bus:          bus,
		config:       cfg,
		logger:       logger,
		local:        local,
		remote:       rem,
		connectivity: connectivity,
	}, nil
}

// Start initializes the manager and launches the background drain
// and connectivity loops.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Manager.Initialize(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	var signals <-chan remote.Signal
	if c.connectivity != nil {
		signals = c.connectivity.Signals()
		go c.connectivity.Run(runCtx)
	}
	go c.Drainer.Run(runCtx, signals)

	return nil
}

// Close stops background work and releases resources.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.connectivity != nil {
		_ = c.connectivity.Close()
	}
	_ = c.Manager.Close()
	if c.remote != nil {
		_ = c.remote.Close()
	}
	return c.local.Close()
}
