package notify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

const (
	TypeSMSApp = "smsApp"

	msgTypeAlert      = "Alert Notification"
	msgTypeDeviceSMS  = "Command*DEVICE-SMS"
	msgTypeDirectSMS  = "Command*DIRECT-SMS"
	commandTypePrefix = "Command*"
)

// SMSMessage is what the SMS gateway consumes from its queue.
type SMSMessage struct {
	ID              string         `json:"id"`
	Phone           string         `json:"phone"`
	Msg             string         `json:"msg"`
	MsgType         string         `json:"msgType"`
	CommandType     string         `json:"commandType,omitempty"`
	OtherDetails    map[string]any `json:"otherDetails"`
	QueuedTimestamp time.Time      `json:"queuedTimestamp"`
}

// SMSQueue hands messages to the SMS gateway.
type SMSQueue interface {
	Send(ctx context.Context, msg *SMSMessage) error
}

type PhoneResolver interface {
	Phone(ctx context.Context, deviceID int64) (string, error)
}

// SentMarker persists per-channel delivery on the stored event.
type SentMarker interface {
	MarkNotificationSent(ctx context.Context, eventID, notificator string) error
}

// SMSApp queues short text messages for the SMS gateway and suppresses
// repeats of the same device event within the dedup window.
type SMSApp struct {
	queue   SMSQueue
	phones  PhoneResolver
	devices DeviceLookup
	events  SentMarker
	dedup   Deduplicator
	window  time.Duration
	format  *Formatter
	pool    *AsyncPool
	log     logrus.FieldLogger
}

type SMSAppDeps struct {
	Queue     SMSQueue
	Phones    PhoneResolver
	Devices   DeviceLookup
	Events    SentMarker
	Dedup     Deduplicator
	Window    time.Duration
	Formatter *Formatter
	Pool      *AsyncPool
}

func NewSMSApp(deps SMSAppDeps, log logrus.FieldLogger) *SMSApp {
	return &SMSApp{
		queue:   deps.Queue,
		phones:  deps.Phones,
		devices: deps.Devices,
		events:  deps.Events,
		dedup:   deps.Dedup,
		window:  deps.Window,
		format:  deps.Formatter,
		pool:    deps.Pool,
		log:     log.WithField("notificator", TypeSMSApp),
	}
}

func (s *SMSApp) Type() string { return TypeSMSApp }

func (s *SMSApp) SendAsync(userID int64, ev *domain.Event, pos *domain.Position) {
	s.pool.Enqueue(s, userID, ev, pos)
}

func (s *SMSApp) SendSync(ctx context.Context, userID int64, ev *domain.Event, pos *domain.Position) {
	log := s.log.WithFields(logrus.Fields{
		"event_type": ev.Type,
		"device_id":  ev.DeviceID,
		"user_id":    userID,
	})

	var key string
	if Tracked(ev) {
		key = DedupKey(TypeSMSApp, ev)
		first, err := s.dedup.Claim(ctx, key, s.window)
		switch {
		case err != nil:
			// dedup unavailable: deliver without a claim
			log.WithError(err).Warn("dedup claim failed, sending anyway")
			key = ""
		case !first:
			metrics.NotificationsSuppressed.WithLabelValues(TypeSMSApp).Inc()
			log.Debug("duplicate notification suppressed")
			return
		}
	}

	if err := s.send(ctx, ev, pos); err != nil {
		metrics.NotificationFailures.WithLabelValues(TypeSMSApp).Inc()
		log.WithError(err).Error("sms notification failed")
		if key != "" {
			if rerr := s.dedup.Release(ctx, key); rerr != nil {
				log.WithError(rerr).Warn("dedup release failed")
			}
		}
		return
	}

	metrics.NotificationsSent.WithLabelValues(TypeSMSApp).Inc()
	ev.MarkSent(TypeSMSApp)
	if ev.Type == domain.EventTest {
		return
	}
	if err := s.events.MarkNotificationSent(ctx, ev.ID, TypeSMSApp); err != nil {
		log.WithError(err).Warn("could not record sms delivery")
	}
}

func (s *SMSApp) send(ctx context.Context, ev *domain.Event, pos *domain.Position) error {
	phone, err := s.phones.Phone(ctx, ev.DeviceID)
	if err != nil {
		return errors.Wrap(err, "resolve phone")
	}
	if phone == "" {
		return errors.Errorf("device %d has no phone number", ev.DeviceID)
	}

	var location string
	if pos != nil {
		location = pos.Address
	}

	return s.enqueue(ctx, strconv.FormatInt(ev.DeviceID, 10), phone, s.format.Short(ctx, ev, pos), msgTypeAlert, map[string]any{
		"eventType": ev.Type,
		"location":  location,
		"deviceId":  ev.DeviceID,
		"eventId":   ev.ID,
	})
}

func (s *SMSApp) enqueue(ctx context.Context, id, phone, text, msgType string, details map[string]any) error {
	msg := &SMSMessage{
		ID:              id,
		Phone:           phone,
		Msg:             text,
		MsgType:         msgType,
		OtherDetails:    details,
		QueuedTimestamp: time.Now().UTC(),
	}
	if strings.HasPrefix(msgType, commandTypePrefix) {
		msg.CommandType = strings.TrimPrefix(msgType, commandTypePrefix)
	}
	return errors.Wrap(s.queue.Send(ctx, msg), "queue sms")
}

// SendDeviceMessage queues a free-text message to each device's phone. It
// returns the ids of devices that could not be reached.
func (s *SMSApp) SendDeviceMessage(ctx context.Context, deviceIDs []int64, text string) []int64 {
	var failed []int64
	for _, id := range deviceIDs {
		d, err := s.devices.Device(ctx, id)
		if err != nil || d == nil || d.Phone == "" {
			failed = append(failed, id)
			continue
		}
		err = s.enqueue(ctx, strconv.FormatInt(d.ID, 10), d.Phone, text, msgTypeDeviceSMS, map[string]any{
			"owner":       d.Name,
			"plateNumber": d.PlateNumber,
		})
		if err != nil {
			s.log.WithError(err).WithField("device_id", id).Error("device sms failed")
			failed = append(failed, id)
		}
	}
	return failed
}

// SendDirect queues a message to an arbitrary phone number.
func (s *SMSApp) SendDirect(ctx context.Context, phone, text string) error {
	if phone == "" {
		return errors.New("phone is required")
	}
	return s.enqueue(ctx, phone, phone, text, msgTypeDirectSMS, map[string]any{})
}
