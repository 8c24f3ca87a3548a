package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		Env        string `env:"APP_ENV" envDefault:"dev"`
		ListenAddr string `env:"LISTEN_ADDR" envDefault:":8000"`
		LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

		CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173,http://localhost:3000,http://127.0.0.1:3000"`

		Storage   Storage
		Session   Session
		Transport Transport
	}

	Storage struct {
		Type           string `env:"STORAGE_TYPE" envDefault:"memory"`
		DataSourceName string `env:"DATA_SOURCE_NAME" envDefault:"./data/rooms.db"`
		LocalPath      string `env:"LOCAL_STORAGE_PATH" envDefault:"./data/rooms"`
		S3Bucket       string `env:"S3_BUCKET_NAME"`
	}

	Session struct {
		AutoPersist      bool          `env:"AUTO_PERSIST" envDefault:"false"`
		AutoPersistDelay time.Duration `env:"AUTO_PERSIST_DELAY" envDefault:"500ms"`
		PeerQueueSize    int           `env:"PEER_QUEUE_SIZE" envDefault:"256"`
		WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	}

	Transport struct {
		PongWait          time.Duration `env:"PONG_WAIT" envDefault:"60s"`
		MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE" envDefault:"1048576"`
		MessagesPerSecond float64       `env:"MESSAGES_PER_SECOND" envDefault:"100"`
		MessageBurst      int           `env:"MESSAGE_BURST" envDefault:"200"`
	}
)

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Type {
	case "memory", "sqlite", "filesystem", "s3":
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type)
	}
	if c.Session.PeerQueueSize <= 0 {
		return fmt.Errorf("PEER_QUEUE_SIZE must be positive, got %d", c.Session.PeerQueueSize)
	}
	if c.Session.WriteTimeout <= 0 {
		return fmt.Errorf("WRITE_TIMEOUT must be positive, got %s", c.Session.WriteTimeout)
	}
	if c.Transport.PongWait <= 0 {
		return fmt.Errorf("PONG_WAIT must be positive, got %s", c.Transport.PongWait)
	}
	return nil
}
