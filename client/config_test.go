package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigWithDefaults(t *testing.T) {
	testCases := map[string]struct {
		config   Config
		expected Config
	}{
		"zero values pick up defaults": {
			config: Config{Endpoint: "http://localhost:2479"},
			expected: Config{
				Endpoint:       "http://localhost:2479",
				MaxRetries:     DefaultMaxRetries,
				RetryDelay:     DefaultRetryDelay,
				ReconnectDelay: DefaultReconnectDelay,
				PollInterval:   DefaultPollInterval,
			},
		},
		"explicit values survive": {
			config: Config{
				Endpoint:       "http://localhost:2479",
				MaxRetries:     7,
				RetryDelay:     25 * time.Millisecond,
				ReconnectDelay: 250 * time.Millisecond,
				PollInterval:   5 * time.Second,
			},
			expected: Config{
				Endpoint:       "http://localhost:2479",
				MaxRetries:     7,
				RetryDelay:     25 * time.Millisecond,
				ReconnectDelay: 250 * time.Millisecond,
				PollInterval:   5 * time.Second,
			},
		},
		"negative max retries disables retries": {
			config: Config{Endpoint: "http://localhost:2479", MaxRetries: -1},
			expected: Config{
				Endpoint:       "http://localhost:2479",
				MaxRetries:     -1,
				RetryDelay:     DefaultRetryDelay,
				ReconnectDelay: DefaultReconnectDelay,
				PollInterval:   DefaultPollInterval,
			},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			actual := testCase.config.withDefaults()
			require.NotNil(t, actual.Logger)
			actual.Logger = nil
			require.Equal(t, testCase.expected, actual)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := map[string]struct {
		config Config
		valid  bool
	}{
		"endpoint only": {
			config: Config{Endpoint: "http://localhost:2479"},
			valid:  true,
		},
		"no endpoint and no gateway": {
			config: Config{},
			valid:  false,
		},
		"negative retry delay": {
			config: Config{Endpoint: "http://localhost:2479", RetryDelay: -time.Second},
			valid:  false,
		},
		"negative reconnect delay": {
			config: Config{Endpoint: "http://localhost:2479", ReconnectDelay: -time.Second},
			valid:  false,
		},
		"negative poll interval": {
			config: Config{Endpoint: "http://localhost:2479", PollInterval: -time.Second},
			valid:  false,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			err := testCase.config.Validate()

			if testCase.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	writeFile := func(t *testing.T, contents string) string {
		t.Helper()

		path := filepath.Join(t.TempDir(), "kite.yaml")

		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

		return path
	}

	t.Run("full file", func(t *testing.T) {
		path := writeFile(t, `
endpoint: http://localhost:2479
max_retries: 5
retry_delay_ms: 50
reconnect_delay_ms: 2000
poll_interval_ms: 500
`)

		config, err := LoadConfig(path)

		require.NoError(t, err)
		require.Equal(t, Config{
			Endpoint:       "http://localhost:2479",
			MaxRetries:     5,
			RetryDelay:     50 * time.Millisecond,
			ReconnectDelay: 2 * time.Second,
			PollInterval:   500 * time.Millisecond,
		}, config)
	})

	t.Run("sparse file keeps defaults", func(t *testing.T) {
		path := writeFile(t, "endpoint: http://localhost:2479\n")

		config, err := LoadConfig(path)

		require.NoError(t, err)

		config = config.withDefaults()
		require.Equal(t, DefaultMaxRetries, config.MaxRetries)
		require.Equal(t, DefaultRetryDelay, config.RetryDelay)
		require.Equal(t, DefaultReconnectDelay, config.ReconnectDelay)
		require.Equal(t, DefaultPollInterval, config.PollInterval)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		path := writeFile(t, "max_retries: 5\n")

		_, err := LoadConfig(path)

		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeFile(t, "endpoint: [broken\n")

		_, err := LoadConfig(path)

		require.Error(t, err)
	})
}
