// SPDX-License-Identifier: MIT

// Command hieasyd is the long-running DVR companion daemon: it runs the
// recording supervisor, the segment upload queue, and the HTTP control
// surface for device configuration and recorder management.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/nvrhub/hieasy/internal/api"
	"github.com/nvrhub/hieasy/internal/auth"
	"github.com/nvrhub/hieasy/internal/client"
	"github.com/nvrhub/hieasy/internal/config"
	"github.com/nvrhub/hieasy/internal/deviceconf"
	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/recorder"
)

func main() {
	app := cli.NewApp()
	app.Name = "hieasyd"
	app.Usage = "HiEasy DVR recording and control daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, f",
			Usage:  "path to YAML configuration file",
			EnvVar: "DVR_CONFIG_FILE",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "debug logging",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	level := cfg.LogLevel
	if c.Bool("verbose") {
		level = "debug"
	}
	xlog.Configure(xlog.Config{Level: level, Service: "hieasyd"})
	logger := xlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervisor, err := recorder.New(cfg.CacheDir)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	device := deviceconf.New(client.Config{
		Host:        cfg.Host,
		CommandPort: cfg.CommandPort,
		MediaPort:   cfg.MediaPort,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Oracle:      &auth.CommandOracle{Path: cfg.HashHelper},
	})
	defer device.Close()

	server := api.New(cfg.Listen, device, supervisor)

	if err := supervisor.Start(ctx); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return supervisor.WatchConfig(gctx)
	})

	logger.Info().
		Str(xlog.FieldEvent, "daemon.started").
		Str(xlog.FieldHost, cfg.Host).
		Str("listen", cfg.Listen).
		Msg("daemon running")

	err = g.Wait()

	// The HTTP surface is already down here; stopping the supervisor last
	// lets in-flight segments finalise before exit.
	supervisor.Stop()
	logger.Info().Str(xlog.FieldEvent, "daemon.stopped").Msg("daemon stopped")

	if err != nil && err != http.ErrServerClosed && err != context.Canceled {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}
