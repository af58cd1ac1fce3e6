package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/adbtp/internal/echo"
	"github.com/danmuck/adbtp/internal/logging"
	"github.com/danmuck/adbtp/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to adbtpd config.toml")
	addr := flag.String("addr", "", "protocol listen address (overrides config)")
	httpAddr := flag.String("http", "", "health/metrics listen address (overrides config)")
	flag.Parse()

	cfg := echo.DefaultServerConfig()
	logCfg := logging.Resolve(logging.ProfileRuntime)
	if *configPath != "" {
		var err error
		if cfg, logCfg, err = loadServerConfig(*configPath, cfg, logCfg); err != nil {
			fmt.Fprintf(os.Stderr, "adbtpd: %v\n", err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	logger := observability.InitLogger("adbtpd", logCfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := echo.NewServer(cfg).Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("adbtpd_failed")
		stop()
		os.Exit(1)
	}
}
