package client

import (
	"time"

	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/metrics"
	"github.com/nvrhub/hieasy/internal/protocol"
)

const heartbeatReplyBody = `<HeartBeatNoticeReply CmdReply="0" NetDataFlow="0" NetHistoryDataFlow="0" />`

// heartbeatLoop answers the device's unsolicited heartbeat notices and
// watches for silence. The device drops sessions whose heartbeats go
// unacknowledged, and the miss budget here exceeds the device's own 5-15 s
// cadence, so tripping it means the peer is genuinely gone.
//
// The reply must echo the notice's transaction id and is sent outside the
// queue lock; takeFirst returns before send runs.
func (s *Session) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()

	for range ticker.C {
		if !s.alive.Load() || s.dead.Load() {
			return
		}

		if m, ok := s.queue.takeFirst(isHeartbeatNotice); ok {
			s.lastHeartbeat.Store(timeNow().UnixNano())
			if err := s.sendTxn(protocol.CmdHeartBeatNoticeReply, m.header.Txn(), heartbeatReplyBody); err != nil {
				if !s.alive.Load() {
					return
				}
				s.log.Error().Err(err).
					Str(xlog.FieldEvent, "session.heartbeat_send_failed").
					Msg("heartbeat reply failed")
				s.markDead("heartbeat_send")
				return
			}
			metrics.HeartbeatsAnswered.Inc()
			s.log.Debug().
				Str(xlog.FieldEvent, "session.heartbeat").
				Uint32(xlog.FieldTxn, m.header.Txn()).
				Msg("heartbeat answered")
			continue
		}

		last := time.Unix(0, s.lastHeartbeat.Load())
		if silence := timeNow().Sub(last); silence > heartbeatMissBudget {
			s.log.Error().
				Str(xlog.FieldEvent, "session.heartbeat_miss").
				Dur("silence", silence).
				Msg("no heartbeat from device, connection dead")
			s.markDead("heartbeat_miss")
			return
		}
	}
}
