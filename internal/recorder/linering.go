package recorder

import "sync"

// lineRing keeps the last N lines of muxer stderr so a pipeline failure can
// be reported with context.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	head  int
	count int
}

func newLineRing(capacity int) *lineRing {
	if capacity < 1 {
		capacity = 64
	}
	return &lineRing{lines: make([]string, capacity)}
}

func (r *lineRing) Append(line string) {
	if line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// LastN returns up to n lines, oldest first.
func (r *lineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	out := make([]string, 0, n)
	start := r.head - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
