package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"SolSignal/internal/handler/api"
	"SolSignal/internal/usecase"
	pkgch "SolSignal/pkg/clickhouse"
	"SolSignal/pkg/config"
	xhttp "SolSignal/pkg/http"
	pkgkafka "SolSignal/pkg/kafka"
	applogger "SolSignal/pkg/logger"
	pkgqueue "SolSignal/pkg/queue"
)

// App owns the process lifecycle: it starts every configured subsystem,
// blocks on the shutdown signal, and stops them in reverse dependency
// order.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	scanner     *usecase.Scanner
	manager     *usecase.ModelManager
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	queue       *pkgqueue.RedisQueue
	hub         *api.Hub
	chClient    *pkgch.Client
	redisClient *redis.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	Recorder    *usecase.SignalRecorder
}

// New assembles the app around its required dependencies. Optional
// subsystems arrive through the setters and may stay nil.
func New(
	cfg *config.Config,
	lgr *applogger.Logger,
	scanner *usecase.Scanner,
	manager *usecase.ModelManager,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:      cfg,
		log:      lgr,
		scanner:  scanner,
		manager:  manager,
		consumer: consumer,
		kh:       kh,
		chClient: chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetQueue allows DI to inject the async training queue consumer.
func (a *App) SetQueue(q *pkgqueue.RedisQueue) { a.queue = q }

// SetHub allows DI to inject the websocket hub.
func (a *App) SetHub(h *api.Hub) { a.hub = h }

// SetRedisClient allows DI to hand over the Redis client for closing.
func (a *App) SetRedisClient(c *redis.Client) { a.redisClient = c }

// Run starts everything and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout),
		xhttp.WithLogger(a.log),
	)

	// Persisted model bundles load before the first request can ask for a
	// prediction.
	if a.manager != nil && a.cfg.Models.AutoLoad {
		if err := a.manager.LoadAll(ctx); err != nil {
			a.log.Warn("model load error", applogger.Error(err))
		}
	}

	if a.scanner != nil {
		if err := a.scanner.Start(ctx); err != nil {
			a.log.Error("scanner error", applogger.Error(err))
		}
		syms := make([]string, len(a.cfg.Market.Tokens))
		for i, t := range a.cfg.Market.Tokens {
			syms[i] = t.Symbol
		}
		a.log.Info("scanner started", applogger.Strings("symbols", syms))
	}

	if a.hub != nil {
		a.hub.Start(ctx)
		a.log.Info("ws hub started")
	}

	// A failed optional subsystem degrades the service instead of killing
	// it; the health endpoint reports the gap.
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.log.Error("queue start error", applogger.Error(err))
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops intake first (scanner, hub, http), flushes what is
// buffered, then closes the infrastructure clients.
func (a *App) shutdown(ctx context.Context) error {
	if a.scanner != nil {
		if err := a.scanner.Shutdown(ctx); err != nil {
			a.log.Warn("scanner stop error", applogger.Error(err))
		}
	}

	if a.hub != nil {
		a.hub.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	// The digest collector publishes through the queue, so it must flush
	// while the queue still accepts messages.
	a.log.RemoveCollector()

	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.Recorder != nil {
		a.Recorder.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
