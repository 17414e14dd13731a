// SPDX-License-Identifier: MIT

// Package protocol implements the framed wire format spoken by HiEasy DVRs:
// a fixed 36-byte big-endian header followed by an XML body on the command
// channel, and H.264 payloads on the media channel.
package protocol

import "time"

// TCP keepalive tuning applied to both channels. The firmware never sends
// RST on power loss, so dead peers surface after roughly
// Idle + Interval*Count seconds.
const (
	KeepAliveIdle     = 15 * time.Second
	KeepAliveInterval = 5 * time.Second
	KeepAliveCount    = 3
)

const (
	// HeaderSize is the fixed preamble length in bytes: nine big-endian
	// uint32 words.
	HeaderSize = 36

	// CommandMagic opens every command-channel frame.
	CommandMagic uint32 = 0x05011154
	// MediaMagic opens every media-channel frame.
	MediaMagic uint32 = 0x05011150
	// Version is the only protocol revision these devices speak.
	Version uint32 = 0x00001001

	// TxnBase seeds the transaction counter. Ids are incremented before
	// use, so the first one on the wire is TxnBase+1.
	TxnBase uint32 = 0x10000

	// DefaultCommandPort and DefaultMediaPort are the firmware's fixed
	// listen ports.
	DefaultCommandPort = 5050
	DefaultMediaPort   = 6050
)

// Command identifiers carried in the Command ID attribute of the XML body.
const (
	CmdGetCfg                 = 14
	CmdUserLogin              = 24
	CmdUserLoginReply         = 25
	CmdLoginGetFlag           = 26
	CmdLoginGetFlagReply      = 27
	CmdLogout                 = 28
	CmdLogoutReply            = 29
	CmdHeartBeatNotice        = 78
	CmdHeartBeatNoticeReply   = 79
	CmdRealStreamCreate       = 136
	CmdRealStreamCreateReply  = 137
	CmdRealStreamStart        = 138
	CmdRealStreamStartReply   = 139
	CmdRealStreamStop         = 140
	CmdRealStreamStopReply    = 141
	CmdRealStreamDestroy      = 142
	CmdRealStreamDestroyReply = 143
)
