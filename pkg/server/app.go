package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "PerpHelm/internal/middleware"
	"PerpHelm/internal/service/exchange"
	"PerpHelm/internal/usecase"
	"PerpHelm/pkg/cache"
	"PerpHelm/pkg/config"
	xhttp "PerpHelm/pkg/http"
	pkgkafka "PerpHelm/pkg/kafka"
	applogger "PerpHelm/pkg/logger"

	domrepo "PerpHelm/internal/domain/repository"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg           *config.Config
	log           *applogger.Logger
	stream        *exchange.Stream
	pipeline      *mid.TickPipeline
	runner        *usecase.CycleRunner
	consumer      *pkgkafka.Consumer
	eventsHandler pkgkafka.MessageHandler
	httpHandler   xhttp.Handler
	httpServer    *xhttp.Server
	publisher     domrepo.EventPublisher
	history       domrepo.HistoryStore
	state         domrepo.StateStore
	signalCache   cache.Store
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	stream *exchange.Stream,
	pipeline *mid.TickPipeline,
	runner *usecase.CycleRunner,
	consumer *pkgkafka.Consumer,
	eventsHandler pkgkafka.MessageHandler,
	httpHandler xhttp.Handler,
	publisher domrepo.EventPublisher,
	history domrepo.HistoryStore,
	state domrepo.StateStore,
	signalCache cache.Store,
) *App {
	return &App{
		cfg:           cfg,
		log:           log,
		stream:        stream,
		pipeline:      pipeline,
		runner:        runner,
		consumer:      consumer,
		eventsHandler: eventsHandler,
		httpHandler:   httpHandler,
		publisher:     publisher,
		history:       history,
		state:         state,
		signalCache:   signalCache,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Aggregate warn/error logs onto the bus when Kafka is available.
	if lp, ok := a.publisher.(applogger.Publisher); ok {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      lp,
		})
		defer a.log.RemoveCollector()
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Tick plumbing: stream -> pipeline -> feature window
	if a.stream != nil {
		a.pipeline.Start(ctx)
		if err := a.stream.Subscribe(a.cfg.Stream.Symbols...); err != nil {
			return err
		}
		go func() {
			if err := a.stream.Start(ctx); err != nil && ctx.Err() == nil {
				a.log.Error("stream stopped", applogger.Error(err))
			}
		}()
		go func() {
			for tick := range a.stream.Ticks() {
				if err := a.pipeline.Process(ctx, tick); err != nil {
					a.log.Debug("tick dropped", applogger.Error(err))
				}
			}
		}()
		a.log.Info("stream started", applogger.Strings("symbols", a.cfg.Stream.Symbols))
	}

	// Macro events consumer
	if a.consumer != nil && a.eventsHandler != nil {
		a.consumer.RegisterHandler(a.eventsHandler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.eventsHandler.Topic()))
	}

	// Decision cycle
	go func() {
		if err := a.runner.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("cycle runner stopped", applogger.Error(err))
		}
	}()

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			a.log.Warn("stream close error", applogger.Error(err))
		}
		a.pipeline.Stop()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("consumer stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if err := a.publisher.Close(); err != nil {
		a.log.Warn("publisher close error", applogger.Error(err))
	}
	if err := a.history.Close(); err != nil {
		a.log.Warn("history store close error", applogger.Error(err))
	}
	if err := a.state.Close(); err != nil {
		a.log.Warn("state store close error", applogger.Error(err))
	}
	if a.signalCache != nil {
		if err := a.signalCache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
