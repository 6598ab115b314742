package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/tracking/internal/auth"
	"fleet-monitor/tracking/internal/cache"
	"fleet-monitor/tracking/internal/events"
	"fleet-monitor/tracking/internal/filter"
	"fleet-monitor/tracking/internal/metrics"
	"fleet-monitor/tracking/internal/notify"
	"fleet-monitor/tracking/internal/pipeline"
	transport "fleet-monitor/tracking/internal/transport/http"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the position pipeline and the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(closeCtx)
		log.Info("shutdown complete")
	}()

	if err := a.buildNotifications(true); err != nil {
		return err
	}

	positions := cache.NewPositions(cfg.PositionCacheShards)
	metrics.WatchSize("tracking_position_cache_devices", "Devices with a cached last position", positions.Len)
	metrics.WatchSize("tracking_websocket_clients", "Connected websocket clients", a.hub.Len)

	fanout := pipeline.NewFanout(cfg.DBChannelSize, cfg.StateChannelSize, cfg.EventChannelSize, cfg.EventWorkers)
	proc := pipeline.NewProcessor(pipeline.ProcessorDeps{
		Positions: positions,
		Filter:    filter.NewChain(cfg.Filter(), log),
		Detectors: events.NewSet(log,
			events.AlertDetector{IgnoreDuplicateAlerts: cfg.EventIgnoreDuplicateAlerts},
			events.OverspeedDetector{DefaultLimit: cfg.OverspeedDefaultLimit},
		),
		Seeds:    a.db,
		Profiles: a.devices,
		Sink:     fanout,
	}, log)
	dispatcher := pipeline.NewDispatcher(proc, cfg.DispatchShards, cfg.DispatchQueueSize, log)

	// Writers exit when the fanout closes their channels.
	var writers sync.WaitGroup
	writerCtx := context.Background()
	spawn := func(n int, run func()) {
		for i := 0; i < n; i++ {
			writers.Add(1)
			go func() {
				defer writers.Done()
				run()
			}()
		}
	}
	spawn(cfg.DBWriterWorkers, func() {
		pipeline.NewDBWriter(fanout.DBChan, a.db, cfg.DBBatchSize, cfg.DBFlushIntervalMS, log).Run(writerCtx)
	})
	spawn(cfg.StateWriterWorkers, func() {
		pipeline.NewStateWriter(fanout.StateChan, a.redis, log).Run(writerCtx)
	})
	for _, ch := range fanout.EventChans {
		spawn(1, func() {
			pipeline.NewEventWriter(ch, a.db, a.registry, log).Run(writerCtx)
		})
	}

	var sms transport.SMSSender
	if _, err := a.registry.Get(notify.TypeSMSApp); err == nil {
		sms = a.sms
	}
	router := transport.NewRouter(transport.ServerDeps{
		Auth:          auth.NewAuthenticator(cfg, a.redis, log),
		Dispatcher:    dispatcher,
		Processor:     proc,
		Notifications: a.registry,
		SMS:           sms,
		WebSocket:     a.hub,
	}, log)
	server := transport.NewServer(":"+cfg.HTTPPort, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(gctx)
		log.Info("dispatcher drained")
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	if cfg.NotificationHealthcheckInterval > 0 {
		g.Go(func() error {
			return runHealthcheck(gctx, a.registry, cfg.NotificationHealthcheckInterval, log)
		})
	}

	log.WithFields(logrus.Fields{
		"port":   cfg.HTTPPort,
		"shards": cfg.DispatchShards,
	}).Info("tracking service started")

	err = g.Wait()
	log.Info("shutting down")

	fanout.Close()
	writers.Wait()
	log.Info("writers flushed")

	return err
}

// runHealthcheck sends a test event through every notificator on a fixed
// interval until ctx is done.
func runHealthcheck(ctx context.Context, registry *notify.Registry, every time.Duration, log logrus.FieldLogger) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			log.Debug("running notificator healthcheck")
			if err := registry.TestAll(ctx, 0); err != nil {
				log.WithError(err).Warn("notificator healthcheck interrupted")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	<-ctx.Done()
	return scheduler.Shutdown()
}
