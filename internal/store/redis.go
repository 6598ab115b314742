package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"fleet-monitor/tracking/internal/config"
	"fleet-monitor/tracking/internal/domain"
)

const (
	stateTTL   = 5 * time.Minute
	geoKey     = "fleet:geo"
	pubChannel = "fleet:positions"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// PipelineStateUpdate stores the live state of a device, indexes it for geo
// queries and publishes it, in one round trip.
func (r *RedisStore) PipelineStateUpdate(ctx context.Context, pos *domain.Position) error {
	deviceID := strconv.FormatInt(pos.DeviceID, 10)
	stateData := map[string]interface{}{
		"device_id": pos.DeviceID,
		"lat":       pos.Latitude,
		"lng":       pos.Longitude,
		"speed":     pos.Speed,
		"course":    pos.Course,
		"valid":     pos.Valid,
		"fix_time":  pos.FixTime.Unix(),
		"server_at": pos.ServerTime.Unix(),
		"repaired":  pos.Bool(domain.KeyZeroLocation),
	}

	pubPayload, err := json.Marshal(stateData)
	if err != nil {
		return errors.Wrap(err, "failed to marshal state")
	}

	deviceStateKey := fmt.Sprintf("device:%s:state", deviceID)

	pipe := r.client.Pipeline()

	pipe.HSet(ctx, deviceStateKey, stateData)
	pipe.Expire(ctx, deviceStateKey, stateTTL)
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      deviceID,
		Longitude: pos.Longitude,
		Latitude:  pos.Latitude,
	})
	pipe.Publish(ctx, pubChannel, pubPayload)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "redis pipeline failed")
	}

	return nil
}

func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf("api:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "redis get api key failed")
	}
	return val, nil
}

// Claim sets key for ttl unless it already exists. It reports whether this
// caller now owns the key.
func (r *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claim %s", key)
	}
	return ok, nil
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	return errors.Wrapf(r.client.Del(ctx, key).Err(), "release %s", key)
}

func (r *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return errors.Wrapf(r.client.Publish(ctx, channel, payload).Err(), "publish %s", channel)
}
