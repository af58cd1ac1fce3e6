package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/adbtp/internal/logging"
	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/transport"
	"github.com/pelletier/go-toml/v2"
)

const (
	VariantBlocking    = "blocking"
	VariantCooperative = "cooperative"
)

type LogConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	NoColor bool   `toml:"no_color"`
}

// DaemonConfig is the on-disk form of the echo daemon settings. Timeouts accept
// a duration string, "undefined" or "infinite".
type DaemonConfig struct {
	ID               string              `toml:"id"`
	Addr             string              `toml:"addr"`
	HTTPAddr         string              `toml:"http_addr"`
	Variant          string              `toml:"variant"`
	ReadTimeout      deadline.Timeout    `toml:"read_timeout"`
	WriteTimeout     deadline.Timeout    `toml:"write_timeout"`
	TransportTimeout deadline.Timeout    `toml:"transport_timeout"`
	TLS              transport.TLSConfig `toml:"tls"`
	Log              LogConfig           `toml:"log"`
}

type ClientConfig struct {
	Addr             string              `toml:"addr"`
	Variant          string              `toml:"variant"`
	Timeout          deadline.Timeout    `toml:"timeout"`
	TransportTimeout deadline.Timeout    `toml:"transport_timeout"`
	TLS              transport.TLSConfig `toml:"tls"`
	Log              LogConfig           `toml:"log"`
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	var cfg DaemonConfig
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	if cfg.ID == "" {
		cfg.ID = "adbtpd"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":5037"
	}
	if cfg.Variant == "" {
		cfg.Variant = VariantBlocking
	}
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:5037"
	}
	if cfg.Variant == "" {
		cfg.Variant = VariantBlocking
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// loadToml decodes strictly: unknown keys are an error so typos surface at load.
func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config parse failed (%s): %s", path, strict.String())
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("daemon config missing id")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("daemon config missing addr")
	}
	if err := ValidateVariant(cfg.Variant); err != nil {
		return fmt.Errorf("daemon config: %w", err)
	}
	if err := ValidateReadTimeout(cfg.ReadTimeout); err != nil {
		return fmt.Errorf("daemon config: %w", err)
	}
	if err := cfg.TLS.ValidateServer(); err != nil {
		return fmt.Errorf("daemon config: %w", err)
	}
	if err := validateLog(cfg.Log); err != nil {
		return fmt.Errorf("daemon config: %w", err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("client config missing addr")
	}
	if strings.HasPrefix(strings.TrimSpace(cfg.Addr), ":") {
		return fmt.Errorf("client config addr needs a host: %q", cfg.Addr)
	}
	if err := ValidateVariant(cfg.Variant); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	if err := cfg.TLS.ValidateClient(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	if err := validateLog(cfg.Log); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	return nil
}

func ValidateVariant(v string) error {
	switch v {
	case VariantBlocking, VariantCooperative:
		return nil
	default:
		return fmt.Errorf("unknown protocol variant %q", v)
	}
}

// ValidateReadTimeout rejects a bounded read timeout under one millisecond.
// Budgets run in whole milliseconds, so an idle session would retry its header
// read without ever waiting.
func ValidateReadTimeout(t deadline.Timeout) error {
	if d, ok := t.Duration(); ok && d < time.Millisecond {
		return fmt.Errorf("read_timeout must be at least 1ms, undefined or infinite, got %s", t)
	}
	return nil
}

func validateLog(cfg LogConfig) error {
	if strings.TrimSpace(cfg.Level) == "" {
		return nil
	}
	if _, ok := logging.ParseLevel(cfg.Level); !ok {
		return fmt.Errorf("unknown log level %q", cfg.Level)
	}
	return nil
}

// Apply layers the file log settings over base. Empty fields keep base values.
func (l LogConfig) Apply(base logging.Config) logging.Config {
	if lvl, ok := logging.ParseLevel(l.Level); ok {
		base.Level = lvl
	}
	if v := strings.TrimSpace(l.File); v != "" {
		base.File = v
	}
	if l.NoColor {
		base.NoColor = true
	}
	return base
}
