package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"fleet-monitor/tracking/internal/config"
	"fleet-monitor/tracking/internal/domain"
)

type TimescaleStore struct {
	pool *pgxpool.Pool
}

func NewTimescaleStore(ctx context.Context, cfg *config.Config) (*TimescaleStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}

	return &TimescaleStore{pool: pool}, nil
}

func (s *TimescaleStore) Close() {
	s.pool.Close()
}

func (s *TimescaleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var positionColumns = []string{
	"id",
	"device_id",
	"protocol",
	"server_time",
	"device_time",
	"fix_time",
	"valid",
	"latitude",
	"longitude",
	"altitude",
	"speed",
	"course",
	"accuracy",
	"address",
	"network",
	"attributes",
}

func attributesOrEmpty(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	return attrs
}

func (s *TimescaleStore) BatchInsertPositions(ctx context.Context, positions []*domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(positions))
	for i, p := range positions {
		rows[i] = []interface{}{
			p.ID,
			p.DeviceID,
			p.Protocol,
			p.ServerTime,
			p.DeviceTime,
			p.FixTime,
			p.Valid,
			p.Latitude,
			p.Longitude,
			p.Altitude,
			p.Speed,
			p.Course,
			p.Accuracy,
			p.Address,
			p.Network,
			attributesOrEmpty(p.Attributes),
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"positions"},
		positionColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return errors.Wrapf(err, "CopyFrom failed for batch of %d", len(positions))
	}

	return nil
}

// LastPosition returns the most recent stored fix for the device, or nil
// when it has none.
func (s *TimescaleStore) LastPosition(ctx context.Context, deviceID int64) (*domain.Position, error) {
	query := `
		SELECT id, device_id, protocol, server_time, device_time, fix_time, valid,
		       latitude, longitude, altitude, speed, course, accuracy,
		       address, network, attributes
		FROM positions
		WHERE device_id = $1
		ORDER BY fix_time DESC
		LIMIT 1
	`
	var p domain.Position
	err := s.pool.QueryRow(ctx, query, deviceID).Scan(
		&p.ID, &p.DeviceID, &p.Protocol, &p.ServerTime, &p.DeviceTime, &p.FixTime, &p.Valid,
		&p.Latitude, &p.Longitude, &p.Altitude, &p.Speed, &p.Course, &p.Accuracy,
		&p.Address, &p.Network, &p.Attributes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "last position for device %d", deviceID)
	}
	return &p, nil
}

func (s *TimescaleStore) InsertEvent(ctx context.Context, ev *domain.Event) error {
	query := `
		INSERT INTO events
			(id, type, device_id, position_id, server_time, attributes, notifications_sent)
		VALUES
			($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT DO NOTHING
	`
	sent := ev.NotificationSent
	if sent == nil {
		sent = map[string]bool{}
	}
	_, err := s.pool.Exec(
		ctx,
		query,
		ev.ID,
		ev.Type,
		ev.DeviceID,
		ev.PositionID,
		ev.ServerTime,
		attributesOrEmpty(ev.Attributes),
		sent,
	)
	return errors.Wrapf(err, "insert event %s", ev.ID)
}

// MarkNotificationSent records that the event went out on one channel.
func (s *TimescaleStore) MarkNotificationSent(ctx context.Context, eventID, notificator string) error {
	query := `
		UPDATE events
		SET notifications_sent = notifications_sent || jsonb_build_object($2::text, true)
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, query, eventID, notificator)
	return errors.Wrapf(err, "mark event %s sent via %s", eventID, notificator)
}

// Device loads a device profile. A device that does not exist yields nil.
func (s *TimescaleStore) Device(ctx context.Context, deviceID int64) (*domain.Device, error) {
	query := `
		SELECT id, unique_id, name, phone, plate_number, attributes
		FROM devices
		WHERE id = $1
	`
	var d domain.Device
	err := s.pool.QueryRow(ctx, query, deviceID).Scan(
		&d.ID, &d.UniqueID, &d.Name, &d.Phone, &d.PlateNumber, &d.Attributes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "device %d", deviceID)
	}
	return &d, nil
}
