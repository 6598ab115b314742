package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

const (
	TypeRedis = "redis"

	alertsChannel = "fleet:alerts"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Redis publishes notifications on pub/sub channels for other services.
type Redis struct {
	pub    Publisher
	format *Formatter
	pool   *AsyncPool
	log    logrus.FieldLogger
}

func NewRedis(pub Publisher, format *Formatter, pool *AsyncPool, log logrus.FieldLogger) *Redis {
	return &Redis{pub: pub, format: format, pool: pool, log: log.WithField("notificator", TypeRedis)}
}

func (r *Redis) Type() string { return TypeRedis }

func (r *Redis) SendAsync(userID int64, ev *domain.Event, pos *domain.Position) {
	r.pool.Enqueue(r, userID, ev, pos)
}

func userChannel(userID int64) string {
	return fmt.Sprintf("user:%d:alerts", userID)
}

func (r *Redis) SendSync(ctx context.Context, userID int64, ev *domain.Event, pos *domain.Position) {
	log := r.log.WithFields(logrus.Fields{
		"event_type": ev.Type,
		"device_id":  ev.DeviceID,
	})

	body, err := json.Marshal(Payload{Event: ev, Position: pos, Message: r.format.Short(ctx, ev, pos)})
	if err != nil {
		metrics.NotificationFailures.WithLabelValues(TypeRedis).Inc()
		log.WithError(err).Error("marshal redis notification")
		return
	}

	channels := []string{alertsChannel}
	if userID != 0 {
		channels = append(channels, userChannel(userID))
	}
	for _, ch := range channels {
		if err := r.pub.Publish(ctx, ch, body); err != nil {
			metrics.NotificationFailures.WithLabelValues(TypeRedis).Inc()
			log.WithError(err).WithField("channel", ch).Error("redis notification failed")
			return
		}
	}
	metrics.NotificationsSent.WithLabelValues(TypeRedis).Inc()
}
