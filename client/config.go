package client

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jrife/kite/transport"
)

const (
	// DefaultMaxRetries is the default bound on
	// transaction retries after the first attempt
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base delay of the linear
	// transaction retry backoff
	DefaultRetryDelay = 100 * time.Millisecond
	// DefaultReconnectDelay is the fixed delay before a
	// watch or queue transport reconnects after a failure
	DefaultReconnectDelay = time.Second
	// DefaultPollInterval is the default period of the
	// poll transports
	DefaultPollInterval = time.Second
)

// Config configures a Client
type Config struct {
	// Endpoint is the base URL of the remote store. It is
	// required unless Gateway is set.
	Endpoint string
	// Gateway overrides the transport. When set, Endpoint
	// is ignored.
	Gateway transport.Gateway
	// HTTPClient overrides the HTTP client used for point
	// operations
	HTTPClient *http.Client
	Logger     *zap.Logger
	// MaxRetries bounds transaction retries after the
	// first attempt. Zero means DefaultMaxRetries; a
	// negative value disables retries.
	MaxRetries int
	// RetryDelay is the base delay of the linear
	// transaction retry backoff
	RetryDelay time.Duration
	// ReconnectDelay is the fixed delay before watch and
	// queue transports reconnect after a failure
	ReconnectDelay time.Duration
	// PollInterval is the period of the poll transports
	PollInterval time.Duration
}

func (config Config) withDefaults() Config {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}

	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}

	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	return config
}

// Validate checks the configuration for problems that
// would only surface later
func (config Config) Validate() error {
	if config.Gateway == nil && config.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	if config.RetryDelay < 0 {
		return fmt.Errorf("retry_delay_ms must not be negative")
	}

	if config.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect_delay_ms must not be negative")
	}

	if config.PollInterval < 0 {
		return fmt.Errorf("poll_interval_ms must not be negative")
	}

	return nil
}

// fileConfig is the YAML shape of a config file. Delays
// are plain milliseconds so files stay unit-unambiguous.
type fileConfig struct {
	Endpoint         string `yaml:"endpoint"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryDelayMs     int64  `yaml:"retry_delay_ms"`
	ReconnectDelayMs int64  `yaml:"reconnect_delay_ms"`
	PollIntervalMs   int64  `yaml:"poll_interval_ms"`
}

// LoadConfig reads a client configuration from a YAML
// file. Fields left out of the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %s", err)
	}

	var file fileConfig

	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("could not parse config file: %s", err)
	}

	config := Config{
		Endpoint:       file.Endpoint,
		MaxRetries:     file.MaxRetries,
		RetryDelay:     time.Duration(file.RetryDelayMs) * time.Millisecond,
		ReconnectDelay: time.Duration(file.ReconnectDelayMs) * time.Millisecond,
		PollInterval:   time.Duration(file.PollIntervalMs) * time.Millisecond,
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file: %s", err)
	}

	return config, nil
}
