package client

import (
	"strings"
	"sync"
	"time"

	"github.com/nvrhub/hieasy/internal/protocol"
)

const (
	// queueMaxCount caps the reply queue; on overflow only the newest half
	// survives. Consumers that fall this far behind have already lost.
	queueMaxCount = 200
	queueKeep     = queueMaxCount / 2
	// queueMaxAge prunes replies nobody claimed. Stream teardown can leave
	// stragglers behind.
	queueMaxAge = 60 * time.Second

	waitPoll = 100 * time.Millisecond
)

// queuedMessage is one reply taken off the wire, body already decoded.
type queuedMessage struct {
	at     time.Time
	header protocol.Header
	body   string
}

// messageQueue is the FIFO between the reader goroutine and waiters. The
// mutex is never held across a socket write.
type messageQueue struct {
	mu   sync.Mutex
	msgs []queuedMessage
}

func (q *messageQueue) push(m queuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.msgs = append(q.msgs, m)

	if cutoff := timeNow().Add(-queueMaxAge); len(q.msgs) > 0 && q.msgs[0].at.Before(cutoff) {
		kept := q.msgs[:0]
		for _, m := range q.msgs {
			if !m.at.Before(cutoff) {
				kept = append(kept, m)
			}
		}
		q.msgs = kept
	}
	if len(q.msgs) > queueMaxCount {
		q.msgs = append([]queuedMessage(nil), q.msgs[len(q.msgs)-queueKeep:]...)
	}
}

// takeFirst removes and returns the first message satisfying match, in
// arrival order.
func (q *messageQueue) takeFirst(match func(queuedMessage) bool) (queuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.msgs {
		if match(m) {
			q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
			return m, true
		}
	}
	return queuedMessage{}, false
}

func (q *messageQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

func containsTag(tag string) func(queuedMessage) bool {
	return func(m queuedMessage) bool {
		return strings.Contains(m.body, tag)
	}
}

func isHeartbeatNotice(m queuedMessage) bool {
	return strings.Contains(m.body, "HeartBeatNotice") && !strings.Contains(m.body, "Reply")
}
