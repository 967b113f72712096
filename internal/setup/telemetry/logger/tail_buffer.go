package logger

// tailBuffer keeps the most recent lines written to a log file.
type tailBuffer struct {
	lines []string
	limit int
	next  int
	full  bool
	since int // lines added since the last compaction
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = 1
	}

	return &tailBuffer{
		lines: make([]string, limit),
		limit: limit,
	}
}

func (b *tailBuffer) push(line string) {
	b.lines[b.next] = line
	b.next = (b.next + 1) % b.limit

	if b.next == 0 {
		b.full = true
	}

	b.since++
}

// snapshot returns the buffered lines oldest first.
func (b *tailBuffer) snapshot() []string {
	if !b.full {
		return append([]string(nil), b.lines[:b.next]...)
	}

	out := make([]string, 0, b.limit)
	out = append(out, b.lines[b.next:]...)

	return append(out, b.lines[:b.next]...)
}

func (b *tailBuffer) len() int {
	if b.full {
		return b.limit
	}

	return b.next
}
