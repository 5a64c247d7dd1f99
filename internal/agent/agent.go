package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mwantia/fabric/pkg/container"
	config "github.com/mwantia/fluxupload/internal/config/server"
	"github.com/mwantia/fluxupload/pkg/db/store"
	"github.com/mwantia/fluxupload/pkg/log"
	"github.com/mwantia/fluxupload/pkg/upload"
)

type FluxUploadAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg *config.BaseServerConfig
	sc  *container.ServiceContainer
	log log.LoggerService

	store   *store.SQLiteStore
	manager *upload.Manager
	server  *http.Server
	addr    net.Addr
}

func NewAgent(cfg *config.BaseServerConfig) *FluxUploadAgent {
	return newAgent(cfg, log.NewLoggerService("fluxupload", cfg.Log))
}

func newAgent(cfg *config.BaseServerConfig, logger log.LoggerService) *FluxUploadAgent {
	return &FluxUploadAgent{
		cfg: cfg,
		sc:  container.NewServiceContainer(),
		log: logger,
	}
}

func (fua *FluxUploadAgent) setupServices(ctx context.Context) error {
	errs := container.Errors{}

	fua.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](fua.sc,
		container.With[log.LoggerService](),
		container.WithInstance(fua.log)))

	fua.log.Debug("Opening metadata store '%s'...", fua.cfg.Metadata.SQLite.Path)
	st, err := OpenStore(ctx, fua.cfg.Metadata, true)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	fua.store = st

	fua.log.Debug("Registering 'MetadataStore'...")
	errs.Add(container.Register[store.SQLiteStore](fua.sc,
		container.With[store.MetadataStore](),
		container.WithInstance(st)))

	if err := errs.Errors(); err != nil {
		return err
	}

	uploadLog := log.MustResolve(ctx, fua.sc, "upload", fua.log)
	manager, err := NewManager(fua.cfg.Upload, st, upload.LogSink{Log: uploadLog}, uploadLog)
	if err != nil {
		return fmt.Errorf("failed to create upload manager: %w", err)
	}
	fua.manager = manager

	httpLog := log.MustResolve(ctx, fua.sc, "http", fua.log)
	handler := NewHTTPServer(fua.cfg.HTTP, manager, st, httpLog).Handler()
	fua.server = &http.Server{
		Addr:              fua.cfg.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: config.MustDuration(fua.cfg.HTTP.ReadHeaderTimeout, 10*time.Second),
	}
	return nil
}

// Serve runs the upload API and the periodic sweep until ctx is cancelled or a signal arrives
func (fua *FluxUploadAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fua.mutex.Lock()

	if err := fua.setupServices(ctx); err != nil {
		fua.mutex.Unlock()
		fua.close()
		return err
	}

	listener, err := net.Listen("tcp", fua.server.Addr)
	if err != nil {
		fua.mutex.Unlock()
		fua.close()
		return fmt.Errorf("failed to listen on '%s': %w", fua.server.Addr, err)
	}
	fua.addr = listener.Addr()

	serveErr := make(chan error, 1)
	fua.wait.Add(1)
	go func() {
		defer fua.wait.Done()
		if err := fua.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	fua.log.Info("Upload API listening on '%s' (prefix '%s')", fua.addr, fua.cfg.HTTP.Prefix())

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if !fua.cfg.Sweep.Disabled {
		fua.wait.Add(1)
		go func() {
			defer fua.wait.Done()
			fua.runSweeper(sweepCtx)
		}()
	}

	fua.mutex.Unlock()

	var result error
	select {
	case <-ctx.Done():
		fua.log.Info("Shutting down...")
	case result = <-serveErr:
		fua.log.Error("Upload API stopped: %v", result)
	}
	stopSweep()

	timeout, err := time.ParseDuration(fua.cfg.ShutdownTimeout)
	if err != nil {
		// Set default of 60 seconds if error
		timeout = 60 * time.Second
	}

	shutdown, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	if err := fua.server.Shutdown(shutdown); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to shutdown upload api: %w", err))
	}

	fua.wait.Wait()

	if err := fua.sc.Cleanup(shutdown); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to complete service container cleanup: %w", err))
	}
	fua.close()

	return result
}

// Addr is the bound listener address once Serve is running
func (fua *FluxUploadAgent) Addr() net.Addr {
	fua.mutex.RLock()
	defer fua.mutex.RUnlock()
	return fua.addr
}

func (fua *FluxUploadAgent) runSweeper(ctx context.Context) {
	logger := log.MustResolve(ctx, fua.sc, "sweep", fua.log)
	interval := config.MustDuration(fua.cfg.Sweep.Interval, time.Hour)

	if fua.cfg.Sweep.OnStart {
		fua.sweep(ctx, logger)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fua.sweep(ctx, logger)
		}
	}
}

func (fua *FluxUploadAgent) sweep(ctx context.Context, logger log.LoggerService) {
	result, err := fua.manager.Sweep(ctx, false)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("Sweep failed: %v", err)
		}
		return
	}
	if result.Cleaned > 0 || result.StuckFailed > 0 {
		logger.Info("Swept %d expired sessions, failed %d stuck assemblies", result.Cleaned, result.StuckFailed)
		return
	}
	logger.Debug("Sweep found nothing to reclaim")
}

func (fua *FluxUploadAgent) close() {
	if fua.store != nil {
		if err := fua.store.Close(); err != nil {
			fua.log.Warn("Failed to close metadata store: %v", err)
		}
	}
	if closer, ok := fua.log.(interface{ Cleanup() error }); ok {
		_ = closer.Cleanup()
	}
}
