package client

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nvrhub/hieasy/internal/protocol"
)

// The device's replies are flat, single-element XML fragments; attribute
// extraction stays regex-based on purpose.
var (
	loginFlagRE    = regexp.MustCompile(`LoginFlag="([^"]*)"`)
	mediaSessionRE = regexp.MustCompile(`MediaSession="(\d+)"`)
)

// login runs the three-step authentication inline on a fresh connection.
// The reader is not running yet, so replies are read directly off the
// socket in request order.
func login(ctx context.Context, conn net.Conn, cfg Config, logger zerolog.Logger) error {
	if _, err := protocol.WriteCommand(conn, protocol.CmdLoginGetFlag,
		fmt.Sprintf(`<LoginGetFlag UserName="%s" />`, cfg.Username)); err != nil {
		return fmt.Errorf("client: login flag request: %w", err)
	}
	msg, err := protocol.ReadMessage(conn, loginReplyTimeout)
	if err != nil {
		return fmt.Errorf("client: login flag reply: %w", err)
	}
	body := protocol.ParseBody(msg.Body)
	m := loginFlagRE.FindStringSubmatch(body)
	if m == nil {
		return &protocol.ProtocolError{Op: "login", Detail: "no LoginFlag in " + protocol.Snippet(body)}
	}
	nonce := m[1]
	logger.Debug().Str("event", "session.login_flag").Str("nonce", nonce).Msg("received login nonce")

	hash, err := cfg.Oracle.LoginHash(ctx, nonce, cfg.Username, cfg.Password)
	if err != nil {
		return fmt.Errorf("%w: hash oracle: %v", ErrAuthentication, err)
	}
	if hash == "" {
		return fmt.Errorf("%w: hash oracle returned nothing", ErrAuthentication)
	}

	if _, err := protocol.WriteCommand(conn, protocol.CmdUserLogin,
		fmt.Sprintf(`<UserLogin UserName="%s" UserIP="192.168.1.1" UserMAC="00:00:00:00:00:00" LoginFlag="%s" />`,
			cfg.Username, hash)); err != nil {
		return fmt.Errorf("client: login request: %w", err)
	}
	msg, err = protocol.ReadMessage(conn, loginReplyTimeout)
	if err != nil {
		return fmt.Errorf("client: login reply: %w", err)
	}
	body = protocol.ParseBody(msg.Body)
	if !strings.Contains(body, `CmdReply="0"`) {
		return fmt.Errorf("%w: %s", ErrAuthentication, protocol.Snippet(body))
	}
	logger.Info().Str("event", "session.authenticated").Msg("login successful")
	return nil
}
