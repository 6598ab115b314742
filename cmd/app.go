package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/config"
	"fleet-monitor/tracking/internal/identity"
	"fleet-monitor/tracking/internal/notify"
	"fleet-monitor/tracking/internal/store"
)

// app holds the connections and notification stack shared by the commands.
type app struct {
	cfg *config.Config
	log *logrus.Logger

	db      *store.TimescaleStore
	redis   *store.RedisStore
	devices *identity.Cache

	pool     *notify.AsyncPool
	hub      *notify.Hub
	smsQueue *notify.ServiceBusQueue
	sms      *notify.SMSApp
	registry *notify.Registry
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	db, err := store.NewTimescaleStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("connected to timescaledb")

	redis, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info("connected to redis")

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		redis:   redis,
		devices: identity.NewCache(db, time.Duration(cfg.DeviceCacheTTLSeconds)*time.Second),
	}, nil
}

// buildNotifications creates the enabled notificators. SMS repeats are
// suppressed through Redis so every instance shares one window; the CLI
// test command uses a process-local window instead.
func (a *app) buildNotifications(sharedDedup bool) error {
	a.pool = notify.NewAsyncPool(
		a.cfg.NotificationWorkers,
		a.cfg.NotificationQueueSize,
		a.cfg.NotificationDeliveryTimeout,
		a.log,
	)
	a.hub = notify.NewHub(a.log)
	format := notify.NewFormatter(a.devices)

	available := []notify.Notificator{
		notify.NewWeb(a.hub, format, a.pool, a.log),
		notify.NewRedis(a.redis, format, a.pool, a.log),
	}

	if a.cfg.SMSQueueConnString != "" {
		queue, err := notify.NewServiceBusQueue(a.cfg.SMSQueueConnString, a.cfg.SMSQueueName())
		if err != nil {
			return err
		}
		a.smsQueue = queue

		var dedup notify.Deduplicator = notify.NewMemoryDeduplicator()
		if sharedDedup {
			dedup = notify.NewRedisDeduplicator(a.redis)
		}
		a.sms = notify.NewSMSApp(notify.SMSAppDeps{
			Queue:     queue,
			Phones:    a.devices,
			Devices:   a.devices,
			Events:    a.db,
			Dedup:     dedup,
			Window:    a.cfg.NotificationDedupWindow,
			Formatter: format,
			Pool:      a.pool,
		}, a.log)
		available = append(available, a.sms)
		a.log.WithField("queue", a.cfg.SMSQueueName()).Info("sms notificator ready")
	} else {
		a.log.Warn("SMS_QUEUE_CONN_STRING is empty, smsApp notificator unavailable")
	}

	registry, err := notify.Select(a.cfg.NotificatorTypes, available...)
	if err != nil {
		return errors.Wrap(err, "failed to build notificator registry")
	}
	a.registry = registry
	a.pool.Start()

	a.log.WithField("notificators", registry.Types()).Info("notifications ready")
	return nil
}

// close releases everything in reverse order of creation. Queued
// notifications get until ctx expires to finish.
func (a *app) close(ctx context.Context) {
	if a.pool != nil {
		if err := a.pool.Shutdown(ctx); err != nil {
			a.log.WithError(err).Warn("notification pool did not drain")
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.smsQueue != nil {
		if err := a.smsQueue.Close(ctx); err != nil {
			a.log.WithError(err).Warn("failed to close sms queue")
		}
	}
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close redis")
	}
	a.db.Close()
}
