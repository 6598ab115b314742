package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"fleet-monitor/tracking/internal/filter"
)

type Config struct {
	// HTTP
	HTTPPort string

	// TimescaleDB
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Pipeline channels
	DBChannelSize    int
	StateChannelSize int
	EventChannelSize int

	// Batch writer tuning
	DBBatchSize       int
	DBFlushIntervalMS int

	// Worker counts
	DispatchShards     int
	DispatchQueueSize  int
	DBWriterWorkers    int
	StateWriterWorkers int
	EventWorkers       int

	PositionCacheShards int

	// Auth and device identity
	AuthCacheTTLSeconds   int
	DeviceCacheTTLSeconds int
	ValidAPIKeys          []string

	// Filtering, thresholds as in the device server config
	FilterInvalid        bool
	FilterZero           bool
	FilterDuplicate      bool
	FilterFutureSeconds  int
	FilterAccuracy       float64
	FilterApproximate    bool
	FilterStatic         bool
	FilterDistance       float64
	FilterMaxSpeed       float64
	FilterMinPeriod      int
	FilterSkipLimit      int
	FilterSkipAttributes bool
	HomeLatitude         float64
	HomeLongitude        float64

	// Events
	EventIgnoreDuplicateAlerts bool
	OverspeedDefaultLimit      float64

	// Notifications
	NotificatorTypes                []string
	NotificationDedupWindow         time.Duration
	NotificationDeliveryTimeout     time.Duration
	NotificationWorkers             int
	NotificationQueueSize           int
	NotificationHealthcheckInterval time.Duration

	SMSQueueConnString string
	SMSQueueProd       string
	SMSQueueDemo       string
	SMSAppProd         bool

	// Logging
	LogLevel string
	LogJSON  bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", "8001")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "fleet_user")
	v.SetDefault("db_password", "fleet_password")
	v.SetDefault("db_name", "fleet_monitor")
	v.SetDefault("db_max_conns", 15)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("db_channel_size", 10000)
	v.SetDefault("state_channel_size", 50000)
	v.SetDefault("event_channel_size", 10000)
	v.SetDefault("db_batch_size", 500)
	v.SetDefault("db_flush_interval_ms", 100)
	v.SetDefault("dispatch_shards", 16)
	v.SetDefault("dispatch_queue_size", 1024)
	v.SetDefault("db_writer_workers", 10)
	v.SetDefault("state_writer_workers", 5)
	v.SetDefault("event_workers", 3)
	v.SetDefault("position_cache_shards", 64)

	v.SetDefault("auth_cache_ttl_seconds", 300)
	v.SetDefault("device_cache_ttl_seconds", 300)
	v.SetDefault("valid_api_keys", "")

	v.SetDefault("filter_invalid", true)
	v.SetDefault("filter_zero", true)
	v.SetDefault("filter_duplicate", true)
	v.SetDefault("filter_future", 86400)
	v.SetDefault("filter_accuracy", 0)
	v.SetDefault("filter_approximate", false)
	v.SetDefault("filter_static", false)
	v.SetDefault("filter_distance", 0)
	v.SetDefault("filter_max_speed", 0)
	v.SetDefault("filter_min_period", 0)
	v.SetDefault("filter_skip_limit", 0)
	v.SetDefault("filter_skip_attributes", false)
	v.SetDefault("home_latitude", 9.018015)
	v.SetDefault("home_longitude", 38.795576)

	v.SetDefault("event_ignore_duplicate_alerts", true)
	v.SetDefault("event_overspeed_default_limit", 0)

	v.SetDefault("notificator_types", "smsApp,web,redis")
	v.SetDefault("notification_dedup_window", "5m")
	v.SetDefault("notification_delivery_timeout", "10s")
	v.SetDefault("notification_workers", 4)
	v.SetDefault("notification_queue_size", 1000)
	v.SetDefault("notification_healthcheck_interval", "0s")

	v.SetDefault("sms_queue_conn_string", "")
	v.SetDefault("sms_queue_prod", "sms-prod")
	v.SetDefault("sms_queue_demo", "sms-demo")
	v.SetDefault("sms_app_prod", false)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Load reads defaults, then the optional config file, then .env, then the
// environment. Later sources win.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		HTTPPort:   v.GetString("http_port"),
		DBHost:     v.GetString("db_host"),
		DBPort:     v.GetString("db_port"),
		DBUser:     v.GetString("db_user"),
		DBPassword: v.GetString("db_password"),
		DBName:     v.GetString("db_name"),
		DBMaxConns: v.GetInt32("db_max_conns"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		DBChannelSize:       v.GetInt("db_channel_size"),
		StateChannelSize:    v.GetInt("state_channel_size"),
		EventChannelSize:    v.GetInt("event_channel_size"),
		DBBatchSize:         v.GetInt("db_batch_size"),
		DBFlushIntervalMS:   v.GetInt("db_flush_interval_ms"),
		DispatchShards:      v.GetInt("dispatch_shards"),
		DispatchQueueSize:   v.GetInt("dispatch_queue_size"),
		DBWriterWorkers:     v.GetInt("db_writer_workers"),
		StateWriterWorkers:  v.GetInt("state_writer_workers"),
		EventWorkers:        v.GetInt("event_workers"),
		PositionCacheShards: v.GetInt("position_cache_shards"),

		AuthCacheTTLSeconds:   v.GetInt("auth_cache_ttl_seconds"),
		DeviceCacheTTLSeconds: v.GetInt("device_cache_ttl_seconds"),
		ValidAPIKeys:          splitList(v.GetString("valid_api_keys")),

		FilterInvalid:        v.GetBool("filter_invalid"),
		FilterZero:           v.GetBool("filter_zero"),
		FilterDuplicate:      v.GetBool("filter_duplicate"),
		FilterFutureSeconds:  v.GetInt("filter_future"),
		FilterAccuracy:       v.GetFloat64("filter_accuracy"),
		FilterApproximate:    v.GetBool("filter_approximate"),
		FilterStatic:         v.GetBool("filter_static"),
		FilterDistance:       v.GetFloat64("filter_distance"),
		FilterMaxSpeed:       v.GetFloat64("filter_max_speed"),
		FilterMinPeriod:      v.GetInt("filter_min_period"),
		FilterSkipLimit:      v.GetInt("filter_skip_limit"),
		FilterSkipAttributes: v.GetBool("filter_skip_attributes"),
		HomeLatitude:         v.GetFloat64("home_latitude"),
		HomeLongitude:        v.GetFloat64("home_longitude"),

		EventIgnoreDuplicateAlerts: v.GetBool("event_ignore_duplicate_alerts"),
		OverspeedDefaultLimit:      v.GetFloat64("event_overspeed_default_limit"),

		NotificatorTypes:                splitList(v.GetString("notificator_types")),
		NotificationDedupWindow:         v.GetDuration("notification_dedup_window"),
		NotificationDeliveryTimeout:     v.GetDuration("notification_delivery_timeout"),
		NotificationWorkers:             v.GetInt("notification_workers"),
		NotificationQueueSize:           v.GetInt("notification_queue_size"),
		NotificationHealthcheckInterval: v.GetDuration("notification_healthcheck_interval"),

		SMSQueueConnString: v.GetString("sms_queue_conn_string"),
		SMSQueueProd:       v.GetString("sms_queue_prod"),
		SMSQueueDemo:       v.GetString("sms_queue_demo"),
		SMSAppProd:         v.GetBool("sms_app_prod"),

		LogLevel: v.GetString("log_level"),
		LogJSON:  v.GetBool("log_json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DispatchShards <= 0 {
		return errors.New("DISPATCH_SHARDS must be positive")
	}
	if c.NotificationWorkers <= 0 {
		return errors.New("NOTIFICATION_WORKERS must be positive")
	}
	if c.NotificationDeliveryTimeout <= 0 {
		return errors.New("NOTIFICATION_DELIVERY_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBMaxConns)
}

// SMSQueueName picks the production or demo SMS queue.
func (c *Config) SMSQueueName() string {
	if c.SMSAppProd {
		return c.SMSQueueProd
	}
	return c.SMSQueueDemo
}

func (c *Config) Filter() filter.Config {
	return filter.Config{
		Invalid:        c.FilterInvalid,
		Zero:           c.FilterZero,
		Duplicate:      c.FilterDuplicate,
		Future:         time.Duration(c.FilterFutureSeconds) * time.Second,
		Accuracy:       c.FilterAccuracy,
		Approximate:    c.FilterApproximate,
		Static:         c.FilterStatic,
		Distance:       c.FilterDistance,
		MaxSpeed:       c.FilterMaxSpeed,
		MinPeriod:      time.Duration(c.FilterMinPeriod) * time.Second,
		SkipLimit:      time.Duration(c.FilterSkipLimit) * time.Second,
		SkipAttributes: c.FilterSkipAttributes,
		HomeLatitude:   c.HomeLatitude,
		HomeLongitude:  c.HomeLongitude,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
