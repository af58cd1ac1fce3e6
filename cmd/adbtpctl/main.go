package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/adbtp/internal/logging"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "adbtpctl",
		Usage: "send ADB messages to an adbtpd daemon under one time budget",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "client config.toml",
			},
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "daemon address (overrides config)",
			},
			&cli.StringFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "budget for the whole command: a duration, `undefined` or `infinite`",
			},
			&cli.StringFlag{
				Name:  "variant",
				Usage: "protocol variant: blocking or cooperative",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "connect",
				Usage:  "send CNXN and print the device banner",
				Action: connectCmd,
			},
			{
				Name:      "send",
				Usage:     "send WRTE with the given payload and print the echo",
				ArgsUsage: "PAYLOAD",
				Action:    sendCmd,
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  "local",
						Value: 1,
						Usage: "local stream id",
					},
					&cli.UintFlag{
						Name:  "remote",
						Value: 1,
						Usage: "remote stream id",
					},
				},
			},
		},
	}
}

func main() {
	logging.Configure(logging.ProfileRuntime)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "adbtpctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
