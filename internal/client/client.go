// SPDX-License-Identifier: MIT

// Package client implements the DVR command channel: authenticated session
// establishment, the shared reply queue, the heartbeat service, and media
// stream control.
package client

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvrhub/hieasy/internal/auth"
	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/protocol"
)

// Overridable for liveness tests.
var timeNow = time.Now

const (
	defaultDialTimeout = 10 * time.Second

	// readTimeout paces the reader loop; a timeout is "no traffic this
	// interval", not a failure.
	readTimeout = 2 * time.Second
	// loginReplyTimeout bounds each inline login read.
	loginReplyTimeout = 10 * time.Second

	createReplyTimeout = 5 * time.Second
	startReplyTimeout  = 3 * time.Second
	// teardownGap spaces the three graceful teardown commands; the firmware
	// drops back-to-back control frames during stream shutdown.
	teardownGap = 200 * time.Millisecond

	heartbeatTick = time.Second
	// heartbeatMissBudget exceeds the device's own 5-15 s notice cadence by
	// a wide margin, so only a genuinely gone peer trips it.
	heartbeatMissBudget = 45 * time.Second
)

var (
	// ErrAuthentication covers a failed login or an unavailable hash oracle.
	ErrAuthentication = errors.New("client: authentication failed")
	// ErrSessionDead is returned by operations on a session whose command
	// channel has been lost.
	ErrSessionDead = errors.New("client: session dead")
	// ErrStreamConsumed is returned by a second Stream call; sessions are
	// single-use.
	ErrStreamConsumed = errors.New("client: session already streamed")
)

// Config carries everything needed to reach and authenticate one device.
type Config struct {
	Host        string
	CommandPort int
	MediaPort   int
	Username    string
	Password    string

	// Oracle produces the LoginFlag hash. Required; login fails with
	// ErrAuthentication when it cannot deliver.
	Oracle auth.Oracle

	DialTimeout time.Duration
	Logger      *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.CommandPort == 0 {
		c.CommandPort = protocol.DefaultCommandPort
	}
	if c.MediaPort == 0 {
		c.MediaPort = protocol.DefaultMediaPort
	}
	if c.Username == "" {
		c.Username = "admin"
	}
	if c.Password == "" {
		c.Password = "123456"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.Logger == nil {
		l := xlog.WithComponent("client")
		c.Logger = &l
	}
	return c
}
