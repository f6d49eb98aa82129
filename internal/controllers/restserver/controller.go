// Package restserver serves stored aggregation results over HTTP.
package restserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/laistats/internal/log"
	"github.com/chrissnell/laistats/internal/storage"
	"github.com/chrissnell/laistats/pkg/config"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	reader     storage.ResultReader
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller over a result store
func NewController(ctx context.Context, wg *sync.WaitGroup, reader storage.ResultReader, rc config.RESTServerData, logger *zap.SugaredLogger) (*Controller, error) {
	if reader == nil {
		return nil, errors.New("REST server needs a result store; configure storage.sqlite")
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.HTTPPort == 0 {
		logger.Infof("rest.http_port not provided; defaulting to %d", config.DefaultHTTPPort)
		rc.HTTPPort = config.DefaultHTTPPort
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		reader:     reader,
		logger:     logger,
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.HTTPPort)
	ctrl.Server.Handler = gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(zap.NewStdLog(logger.Desugar())),
	)(gorillahandlers.CompressHandler(ctrl.setupRouter()))
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server. It shuts down when the
// controller's context is cancelled.
func (c *Controller) StartController() error {
	log.Infof("starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware)

	router.HandleFunc("/runs", c.handlers.GetRuns).Methods(http.MethodGet)
	router.HandleFunc("/records", c.handlers.GetRecords).Methods(http.MethodGet)
	router.HandleFunc("/records/{landuse:[0-9]+}", c.handlers.GetRecords).Methods(http.MethodGet)
	router.HandleFunc("/characteristic-year", c.handlers.GetCharacteristicYear).Methods(http.MethodGet)
	router.HandleFunc("/adjustments/{run}", c.handlers.GetAdjustments).Methods(http.MethodGet)

	return router
}
