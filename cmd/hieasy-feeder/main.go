// SPDX-License-Identifier: MIT

// Command hieasy-feeder connects to a HiEasy DVR, negotiates one live
// stream, and writes the raw H.264 elementary stream to stdout. It is built
// to sit on the left side of a pipe:
//
//	DVR_HOST=192.168.1.50 hieasy-feeder --channel 0 | \
//	  ffmpeg -fflags +genpts -r 25 -f h264 -i pipe:0 -c copy out.mp4
//
// Stdout carries media bytes only; all logging goes to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"github.com/nvrhub/hieasy/internal/auth"
	"github.com/nvrhub/hieasy/internal/client"
	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/metrics"
)

const maxConnectAttempts = 5

func main() {
	app := cli.NewApp()
	app.Name = "hieasy-feeder"
	app.Usage = "stream one DVR channel as raw H.264 to stdout"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "host",
			Usage:  "DVR address",
			EnvVar: "DVR_HOST",
		},
		cli.IntFlag{
			Name:   "cmd-port",
			Value:  5050,
			Usage:  "command channel port",
			EnvVar: "DVR_CMD_PORT",
		},
		cli.IntFlag{
			Name:   "media-port",
			Value:  6050,
			Usage:  "media channel port",
			EnvVar: "DVR_MEDIA_PORT",
		},
		cli.StringFlag{
			Name:   "username",
			Value:  "admin",
			EnvVar: "DVR_USERNAME",
		},
		cli.StringFlag{
			Name:   "password",
			Value:  "123456",
			EnvVar: "DVR_PASSWORD",
		},
		cli.StringFlag{
			Name:   "hash-helper",
			Usage:  "external login-hash helper binary",
			EnvVar: "DVR_HASH_HELPER",
		},
		cli.IntFlag{
			Name:  "channel, c",
			Value: 0,
			Usage: "camera channel (0-based)",
		},
		cli.IntFlag{
			Name:  "stream-type, s",
			Value: 1,
			Usage: "1=main stream, 2=sub stream",
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
	level := "info"
	if c.Bool("verbose") {
		level = "debug"
	}
	xlog.Configure(xlog.Config{Level: level, Service: "hieasy-feeder"})
	logger := xlog.WithComponent("feeder")

	host := c.String("host")
	if host == "" {
		return cli.NewExitError("DVR host is required: use --host or set DVR_HOST", 1)
	}

	cfg := client.Config{
		Host:        host,
		CommandPort: c.Int("cmd-port"),
		MediaPort:   c.Int("media-port"),
		Username:    c.String("username"),
		Password:    c.String("password"),
		Oracle:      &auth.CommandOracle{Path: c.String("hash-helper")},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := feed(ctx, cfg, c.Int("channel"), c.Int("stream-type"), os.Stdout); err != nil {
		logger.Error().Err(err).Msg("feeder exiting after fatal error")
		return cli.NewExitError("", 1)
	}
	return nil
}

// backoffDelay returns the wait before connect attempt n (1-based):
// 3 s, 6 s, 12 s, 24 s, then capped at 30 s.
func backoffDelay(attempt int) time.Duration {
	d := 3 * time.Second << (attempt - 1)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// feed streams until the context is cancelled, the media stream ends
// cleanly, or the connect retry budget is exhausted. A session that reaches
// streaming resets the budget.
func feed(ctx context.Context, cfg client.Config, channel, streamType int, out io.Writer) error {
	logger := xlog.WithComponent("feeder")
	attempt := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		session, err := client.Connect(ctx, cfg, channel, streamType)
		if err != nil {
			attempt++
			if errors.Is(err, client.ErrAuthentication) {
				// Retrying bad credentials only locks accounts out.
				return err
			}
			if attempt >= maxConnectAttempts {
				return fmt.Errorf("connect failed after %d attempts: %w", attempt, err)
			}
			delay := backoffDelay(attempt)
			metrics.ConnectRetries.Inc()
			logger.Warn().Err(err).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("connect failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		clean, err := pump(ctx, session, out, logger)
		session.Disconnect()
		if err != nil {
			return err
		}
		if clean {
			return nil
		}

		// The session died mid-stream; rebuild it.
		attempt = 0
		logger.Warn().
			Int(xlog.FieldChannel, channel).
			Msg("session lost, reconnecting")
	}
}

// pump copies frames to out until the stream ends. clean reports whether
// the run should stop for good (EOF, cancellation, reader gone) rather
// than reconnect.
func pump(ctx context.Context, session *client.Session, out io.Writer, logger zerolog.Logger) (clean bool, err error) {
	stream, err := session.Stream()
	if err != nil {
		return false, err
	}
	logger.Info().
		Str(xlog.FieldEvent, "feeder.streaming").
		Msg("streaming to stdout")

	for {
		if ctx.Err() != nil {
			return true, nil
		}
		frame, err := stream.Next()
		if errors.Is(err, io.EOF) {
			logger.Info().Msg("media stream ended")
			return true, nil
		}
		if errors.Is(err, client.ErrSessionDead) {
			return false, nil
		}
		if err != nil {
			logger.Warn().Err(err).Msg("media read failed")
			return false, nil
		}
		if _, werr := out.Write(frame.Data); werr != nil {
			// Typically EPIPE: the muxer on the other side of the pipe
			// went away, which ends the run cleanly.
			logger.Info().Err(werr).Msg("stdout writer gone, stopping")
			return true, nil
		}
	}
}
