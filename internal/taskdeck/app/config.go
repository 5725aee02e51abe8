package app

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Issuer string `env:"TASKDECK_ISSUER, default=taskdeck"`

	DatabaseFile   string `env:"TASKDECK_DATABASE_FILE, default=taskdeck.db"`
	LocalStoreFile string `env:"TASKDECK_LOCALSTORE_FILE, default=taskdeck-kv.db"`
	BlobDir        string `env:"TASKDECK_BLOB_DIR, default=blobs"`
	FilesBaseURL   string `env:"TASKDECK_FILES_BASE_URL, default=http://localhost:8080/files"`

	KeyID      string        `env:"TASKDECK_KEY_ID, default=taskdeck-key-001"`
	SessionTTL time.Duration `env:"TASKDECK_SESSION_TTL, default=24h"`

	ResolveDebounce      time.Duration `env:"TASKDECK_RESOLVE_DEBOUNCE, default=50ms"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL, default=1h"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD, default=10s"`

	Env       string `env:"ENV, default=dev"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogFormat string `env:"LOG_FORMAT, default=json"`
	Port      int    `env:"PORT, default=8080"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
