// Package config loads btchat settings from a TOML file on top of defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/opd-ai/btchat/limits"
	"github.com/opd-ai/btchat/messaging"
	"github.com/opd-ai/btchat/store"
	"github.com/opd-ai/btchat/transport"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the RFCOMM channel both roles use unless told otherwise.
const DefaultChannel = 4

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Config is the resolved configuration of one session.
type Config struct {
	Role    transport.Role
	Network transport.Network
	// Peer is the remote address for an Initiator and the bind address for
	// a Responder (empty binds any adapter).
	Peer    string
	Channel uint16

	MaxMessageSize int
	Prompt         string
	Quiet          bool

	Store store.Config
	Log   LogConfig

	// MetricsAddr enables the /metrics endpoint when non-empty.
	MetricsAddr string
}

// Default returns the configuration used when nothing is specified: a
// Responder on RFCOMM channel 4 logging to messages.db.
func Default() Config {
	return Config{
		Role:           transport.RoleResponder,
		Network:        transport.NetworkRFCOMM,
		Channel:        DefaultChannel,
		MaxMessageSize: limits.MaxMessageSize,
		Prompt:         messaging.DefaultPrompt,
		Store: store.Config{
			Driver:   store.DriverSQLite,
			Path:     store.DefaultPath,
			RedisKey: store.DefaultRedisKey,
		},
		Log: LogConfig{
			Level:  logrus.InfoLevel.String(),
			Format: FormatText,
		},
	}
}

type fileConfig struct {
	Role           string `toml:"role"`
	Network        string `toml:"network"`
	Peer           string `toml:"peer"`
	Channel        int    `toml:"channel"`
	MaxMessageSize int    `toml:"max_message_size"`
	Prompt         string `toml:"prompt"`
	Quiet          bool   `toml:"quiet"`

	Store struct {
		Driver    string `toml:"driver"`
		Path      string `toml:"path"`
		RedisAddr string `toml:"redis_addr"`
		RedisKey  string `toml:"redis_key"`
	} `toml:"store"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		File   string `toml:"file"`
	} `toml:"log"`

	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`
}

// Load reads path and overlays every key it defines onto Default(). The
// result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"path":     path,
			"keys":     fmt.Sprint(undecoded),
		}).Warn("Ignoring unknown configuration keys")
	}

	if meta.IsDefined("role") {
		role, err := transport.ParseRole(raw.Role)
		if err != nil {
			return Config{}, fmt.Errorf("%w: role: %v", ErrInvalidConfig, err)
		}
		cfg.Role = role
	}
	if meta.IsDefined("network") {
		network, err := transport.ParseNetwork(raw.Network)
		if err != nil {
			return Config{}, fmt.Errorf("%w: network: %v", ErrInvalidConfig, err)
		}
		cfg.Network = network
	}
	if meta.IsDefined("peer") {
		cfg.Peer = strings.TrimSpace(raw.Peer)
	}
	if meta.IsDefined("channel") {
		if raw.Channel < 0 || raw.Channel > 65535 {
			return Config{}, fmt.Errorf("%w: channel %d out of range", ErrInvalidConfig, raw.Channel)
		}
		cfg.Channel = uint16(raw.Channel)
	}
	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("prompt") {
		cfg.Prompt = raw.Prompt
	}
	if meta.IsDefined("quiet") {
		cfg.Quiet = raw.Quiet
	}

	if meta.IsDefined("store", "driver") {
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(raw.Store.Driver))
	}
	if meta.IsDefined("store", "path") {
		cfg.Store.Path = strings.TrimSpace(raw.Store.Path)
	}
	if meta.IsDefined("store", "redis_addr") {
		cfg.Store.RedisAddr = strings.TrimSpace(raw.Store.RedisAddr)
	}
	if meta.IsDefined("store", "redis_key") {
		cfg.Store.RedisKey = strings.TrimSpace(raw.Store.RedisKey)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}

	if meta.IsDefined("metrics", "addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.Metrics.Addr)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a runnable session.
func (c Config) Validate() error {
	if _, err := transport.ParseNetwork(string(c.Network)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Role != transport.RoleInitiator && c.Role != transport.RoleResponder {
		return fmt.Errorf("%w: unknown role %v", ErrInvalidConfig, c.Role)
	}
	if c.Role == transport.RoleInitiator && c.Peer == "" {
		return fmt.Errorf("%w: initiator requires a peer address", ErrInvalidConfig)
	}

	if _, err := transport.ResolveAddr(c.Network, c.Peer, c.Channel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.MaxMessageSize < 0 || c.MaxMessageSize > limits.MaxProcessingBuffer {
		return fmt.Errorf("%w: max_message_size %d outside 0..%d",
			ErrInvalidConfig, c.MaxMessageSize, limits.MaxProcessingBuffer)
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", store.DriverSQLite, store.DriverMemory:
	case store.DriverRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("%w: redis store requires redis_addr", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
