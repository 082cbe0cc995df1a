// Command pagi-server hosts a single PAGI application behind HTTP/1.1,
// WebSocket, and SSE transports. Its boot sequence (slog JSON logging,
// config.Load, signal-driven graceful shutdown) drives PAGI's own
// connection state machine instead of net/http, and optionally forks a
// multi-worker process pool.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pagi-dev/pagi/internal/accesslog"
	"github.com/pagi-dev/pagi/internal/conn"
	"github.com/pagi-dev/pagi/internal/config"
	"github.com/pagi-dev/pagi/internal/devapp"
	"github.com/pagi-dev/pagi/internal/lifespan"
	"github.com/pagi-dev/pagi/internal/upgrade/sse"
	"github.com/pagi-dev/pagi/internal/upgrade/websocket"
	"github.com/pagi-dev/pagi/internal/worker"
	"github.com/pagi-dev/pagi/pagi"
)

func main() {
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("booting pagi-server")

	cfg := config.Load()

	// pagi-server hosts the bundled reference application; embedding a
	// caller-supplied pagi.Application is a job for package pagi itself,
	// used as a library (see DESIGN.md).
	app := devapp.New(logger)

	signal.Notify(reloadCh, syscall.SIGHUP)

	if worker.IsWorkerProcess() {
		runWorker(cfg, app, logger)
		return
	}

	if cfg.Workers >= 1 {
		runSupervised(cfg, logger)
		return
	}

	runSingleProcess(cfg, app, logger)
}

var reloadCh = make(chan os.Signal, 1)

func runSingleProcess(cfg *config.Config, app pagi.Application, logger *slog.Logger) {
	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		logger.Error("listen failed", "error", err)
		os.Exit(1)
	}
	serveOn(ln, cfg, app, logger)
}

func runWorker(cfg *config.Config, app pagi.Application, logger *slog.Logger) {
	ln, err := worker.InheritedListener()
	if err != nil {
		logger.Error("worker: no inherited listener", "error", err)
		os.Exit(1)
	}
	serveOn(ln, cfg, app, logger)
}

func runSupervised(cfg *config.Config, logger *slog.Logger) {
	sup, err := worker.NewSupervisor(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), cfg.Workers, logger)
	if err != nil {
		logger.Error("supervisor bind failed", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutting down supervisor")
		cancel()
	}()
	if err := sup.Run(ctx, cfg.ShutdownGraceSeconds); err != nil {
		logger.Error("supervisor exited with error", "error", err)
		os.Exit(1)
	}
}

func serveOn(ln net.Listener, cfg *config.Config, app pagi.Application, logger *slog.Logger) {
	if cfg.TLS.Enabled {
		tlsConf, err := loadTLS(cfg)
		if err != nil {
			logger.Error("tls setup failed", "error", err)
			os.Exit(1)
		}
		ln = tls.NewListener(ln, tlsConf)
	}

	lifespanRunner := lifespan.New(app)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := lifespanRunner.Startup(startupCtx); err != nil {
		cancelStartup()
		logger.Error("lifespan startup failed", "error", err)
		os.Exit(1)
	}
	cancelStartup()

	logWriter := accesslog.New(os.Stdout, cfg.AccessLogBufferSize, cfg.AccessLogFlushInterval)
	defer logWriter.Close()

	limits := conn.Limits{
		Timeout:         cfg.Timeout,
		MaxHeaderSize:   cfg.MaxHeaderSize,
		MaxHeaderCount:  cfg.MaxHeaderCount,
		MaxBodySize:     cfg.MaxBodySize,
		MaxWSFrameSize:  cfg.MaxWSFrameSize,
		MaxReceiveQueue: cfg.MaxReceiveQueue,
	}

	wsUpgrader := &websocket.Upgrader{MaxFrameSize: cfg.MaxWSFrameSize}
	sseHandler := sse.Handler{}

	serverAddr := pagi.Addr{Host: cfg.Host, Port: cfg.Port}

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var proc *worker.Process
	proc = worker.NewProcess(ln, func(netConn net.Conn) *conn.Connection {
		return conn.New(netConn, conn.Options{
			Application: app,
			Limits:      limits,
			Scheme:      pagi.Scheme(cfg.Scheme()),
			ServerAddr:  serverAddr,
			Logger:      logger,
			WebSocket:   wsUpgrader,
			SSE:         sseHandler,
			AccessLog:   requestCountingLogger{inner: logWriter, proc: proc},
		})
	}, int64(cfg.MaxRequests), logger)

	served := make(chan struct{})
	go func() {
		logger.Info("pagi-server listening", "addr", ln.Addr().String())
		proc.Serve(ctx)
		close(served)
	}()

	go func() {
		for range reloadCh {
			logger.Info("sighup received: log level reload is a no-op placeholder until a dynamic level is wired")
		}
	}()

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case <-served:
		// proc.Serve returned on its own: max_requests was reached. Shut
		// down the same way a signal would, so this worker process exits
		// and its supervisor (if any) sees an ordinary exit to respawn.
		logger.Info("worker request budget exhausted, shutting down")
	}
	cancel()
	proc.WaitGraceful(cfg.ShutdownGraceSeconds)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGraceSeconds)
	defer cancelShutdown()
	if err := lifespanRunner.Shutdown(shutdownCtx); err != nil {
		logger.Error("lifespan shutdown failed", "error", err)
	}
	logger.Info("pagi-server stopped")
}

// requestCountingLogger wraps the real access logger so the worker.Process
// request budget and the access log buffer both observe every completed
// conversation without the connection loop knowing about either.
type requestCountingLogger struct {
	inner conn.AccessLogger
	proc  *worker.Process
}

func (r requestCountingLogger) Log(rec conn.AccessRecord) {
	r.inner.Log(rec)
	if r.proc != nil {
		r.proc.RecordRequest()
	}
}

func loadTLS(cfg *config.Config) (*tls.Config, error) {
	return config.LoadTLSConfig(cfg.TLS)
}
