package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/adbtp/internal/config"
	"github.com/danmuck/adbtp/internal/echo"
	"github.com/danmuck/adbtp/internal/logging"
)

// loadServerConfig overlays the keys set in path onto cfg and logCfg. The file
// uses the config.DaemonConfig schema; keys left out keep their defaults.
func loadServerConfig(path string, cfg echo.ServerConfig, logCfg logging.Config) (echo.ServerConfig, logging.Config, error) {
	var raw config.DaemonConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cfg, logCfg, fmt.Errorf("load adbtpd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, logCfg, fmt.Errorf("load adbtpd config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ID = id
		}
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("variant") {
		cfg.Variant = strings.ToLower(strings.TrimSpace(raw.Variant))
	}
	if meta.IsDefined("read_timeout") {
		cfg.ReadTimeout = raw.ReadTimeout
	}
	if meta.IsDefined("write_timeout") {
		cfg.WriteTimeout = raw.WriteTimeout
	}
	if meta.IsDefined("transport_timeout") {
		cfg.TransportTimeout = raw.TransportTimeout
	}
	if meta.IsDefined("tls") {
		cfg.TLS = raw.TLS
	}
	if meta.IsDefined("log") {
		logCfg = raw.Log.Apply(logCfg)
	}

	merged := config.DaemonConfig{
		ID:               cfg.ID,
		Addr:             cfg.Addr,
		HTTPAddr:         cfg.HTTPAddr,
		Variant:          cfg.Variant,
		ReadTimeout:      cfg.ReadTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		TransportTimeout: cfg.TransportTimeout,
		TLS:              cfg.TLS,
		Log:              raw.Log,
	}
	if err := config.ValidateDaemonConfig(merged); err != nil {
		return cfg, logCfg, fmt.Errorf("load adbtpd config: %w", err)
	}
	return cfg, logCfg, nil
}
