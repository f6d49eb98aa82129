package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/laistats/internal/controllers/restserver"
	"github.com/chrissnell/laistats/internal/log"
	"github.com/chrissnell/laistats/internal/storage/sqlite"
	"github.com/chrissnell/laistats/pkg/config"
)

// Serve exposes the SQLite result store over HTTP and blocks until a
// shutdown signal arrives or ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Storage.SQLite == nil {
		return errors.New("serve needs storage.sqlite")
	}
	store, err := sqlite.New(ctx, a.cfg.Storage.SQLite.Path, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	rc := config.RESTServerData{}
	if a.cfg.REST != nil {
		rc = *a.cfg.REST
	}
	ctrl, err := restserver.NewController(ctx, &wg, store, rc, a.logger)
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	cancel()

	log.Info("waiting for the REST server to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
