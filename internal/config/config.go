package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the global ~/.glasschat/config.toml, with environment
// variable overrides applied on top of the file values.
type Config struct {
	DefaultProfile string `toml:"default_profile" env:"GLASSCHAT_PROFILE"`

	// SocketURL is the base URL the namespace channels dial, e.g.
	// "wss://chat.example.com". The namespace path is appended.
	SocketURL string `toml:"socket_url" env:"GLASSCHAT_SOCKET_URL"`

	// APIURL is the base URL for the REST collaborator.
	APIURL string `toml:"api_url" env:"GLASSCHAT_API_URL"`

	// AckTimeout bounds every acknowledged emit.
	AckTimeout time.Duration `toml:"ack_timeout" env:"GLASSCHAT_ACK_TIMEOUT"`

	// HTTPTimeout bounds every REST call.
	HTTPTimeout time.Duration `toml:"http_timeout" env:"GLASSCHAT_HTTP_TIMEOUT"`

	// TypingExpiry is how long a peer stays in the typing set without a
	// renewing signal.
	TypingExpiry time.Duration `toml:"typing_expiry" env:"GLASSCHAT_TYPING_EXPIRY"`

	// ReconnectAttempts and ReconnectDelay control the channel-owned
	// exponential backoff retry after an unexpected disconnect.
	ReconnectAttempts int           `toml:"reconnect_attempts" env:"GLASSCHAT_RECONNECT_ATTEMPTS"`
	ReconnectDelay    time.Duration `toml:"reconnect_delay" env:"GLASSCHAT_RECONNECT_DELAY"`

	// InboxLimit and MessageLimit are the default page sizes.
	InboxLimit   int `toml:"inbox_limit" env:"GLASSCHAT_INBOX_LIMIT"`
	MessageLimit int `toml:"message_limit" env:"GLASSCHAT_MESSAGE_LIMIT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SocketURL:         "wss://localhost:8443",
		APIURL:            "https://localhost:8443/api",
		AckTimeout:        5 * time.Second,
		HTTPTimeout:       10 * time.Second,
		TypingExpiry:      5 * time.Second,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		InboxLimit:        20,
		MessageLimit:      30,
	}
}

// Load reads config from the given path and applies environment
// overrides. A missing file is not an error: defaults plus environment
// are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
