package config

import (
	"errors"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Iridium40/roam-services-sub004/internal/sidechannel"
	"github.com/Iridium40/roam-services-sub004/pkg/httpserver"
	"github.com/Iridium40/roam-services-sub004/pkg/logger"
	"github.com/Iridium40/roam-services-sub004/pkg/pg"
	"github.com/Iridium40/roam-services-sub004/pkg/redisconn"
)

// ErrParsingConfig is returned when the environment cannot be parsed into
// the config struct.
var ErrParsingConfig = errors.New("failed to parse environment variables into config")

// StreamConfig tunes the delivery channel behavior.
type StreamConfig struct {
	LivenessInterval time.Duration `env:"STREAM_LIVENESS_INTERVAL" envDefault:"20s"`
	ChannelBuffer    int           `env:"STREAM_CHANNEL_BUFFER" envDefault:"64"`
}

// EventConfig tunes the ingestion adapter.
type EventConfig struct {
	ProcessTimeout  time.Duration `env:"EVENT_PROCESS_TIMEOUT" envDefault:"10s"`
	SignatureMaxAge time.Duration `env:"WEBHOOK_SIGNATURE_MAX_AGE" envDefault:"5m"`

	// WebhookSecrets maps provider name to signing secret, e.g.
	// "stripe:whsec_abc,veriff:whsec_def".
	WebhookSecrets map[string]string `env:"WEBHOOK_SECRETS" envSeparator:"," envKeyValSeparator:":"`
}

// BusConfig tunes the Redis event bus intake.
type BusConfig struct {
	Enabled        bool          `env:"BUS_ENABLED" envDefault:"false"`
	Channel        string        `env:"BUS_CHANNEL" envDefault:"notifier:events"`
	ReconnectDelay time.Duration `env:"BUS_RECONNECT_DELAY" envDefault:"2s"`
}

// Config aggregates every subsystem's settings.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifier"`

	// PreferenceBackend selects where subscriber preferences live:
	// "memory" or "redis".
	PreferenceBackend string `env:"PREFS_BACKEND" envDefault:"memory"`

	Logger logger.Config
	HTTP   httpserver.Config
	PG     pg.Config
	Redis  redisconn.Config
	Email  sidechannel.EmailConfig
	Chat   sidechannel.ChatConfig
	Stream StreamConfig
	Event  EventConfig
	Bus    BusConfig
}

var loadEnvOnce sync.Once

// Load parses the environment into a Config, reading a .env file first if
// one exists in the working directory.
func Load() (Config, error) {
	loadEnvOnce.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// MustLoad works like Load but panics on failure. Configuration is required
// for the service to start, so failing fast at boot is the right behavior.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
