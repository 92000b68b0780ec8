package display

import "sync"

// Narrative keeps the most recent narrative lines for the verbose view.
// It is safe for concurrent use: the event consumer pushes while the
// render ticker reads.
type Narrative struct {
	mu    sync.RWMutex
	lines []string
	start int
	full  bool
	size  int
}

// NewNarrative creates a buffer holding up to size lines. A size below
// one keeps nothing.
func NewNarrative(size int) *Narrative {
	if size < 0 {
		size = 0
	}
	return &Narrative{lines: make([]string, 0, size), size: size}
}

// Push appends a line, evicting the oldest once the buffer is full.
func (n *Narrative) Push(line string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.size == 0 {
		return
	}
	if !n.full {
		n.lines = append(n.lines, line)
		if len(n.lines) == n.size {
			n.full = true
		}
		return
	}
	n.lines[n.start] = line
	n.start = (n.start + 1) % n.size
}

// Lines returns a copy of the buffered lines, oldest first.
func (n *Narrative) Lines() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, 0, len(n.lines))
	out = append(out, n.lines[n.start:]...)
	out = append(out, n.lines[:n.start]...)
	return out
}

// Len returns the number of buffered lines.
func (n *Narrative) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.lines)
}
