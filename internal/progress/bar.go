package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Bar shows the progress of one daemon cycle with the current step and cycle timing.
type Bar struct {
	total        int64
	current      int64
	width        int
	mu           sync.Mutex
	message      string
	stepMessage  string
	stepStart    time.Time
	cycleStart   time.Time
	cycles       []time.Duration
	lastRendered string
}

// maxCycleHistory bounds the durations used for the cycle estimate.
const maxCycleHistory = 10

// NewBar creates a progress bar of width characters labelled with message.
func NewBar(total int64, width int, message string) *Bar {
	now := time.Now()

	return &Bar{
		total:      max(total, 1),
		width:      width,
		message:    message,
		stepStart:  now,
		cycleStart: now,
	}
}

// Increment adds to the current progress value, capping at the total.
func (b *Bar) Increment(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = min(b.current+n, b.total)
}

// SetTotal updates the value that represents 100%.
func (b *Bar) SetTotal(total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total = max(total, 1)
	b.current = min(b.current, b.total)
}

// SetCurrent sets the current progress value, capping at the total.
func (b *Bar) SetCurrent(current int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = min(current, b.total)
}

// SetStepMessage updates the current step description and resets the step timer.
func (b *Bar) SetStepMessage(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stepMessage = message
	b.stepStart = time.Now()
}

// String renders the bar.
func (b *Bar) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	percent := float64(b.current) / float64(b.total)
	filled := min(int(percent*float64(b.width)), b.width)
	bar := strings.Repeat("=", filled) + strings.Repeat("-", b.width-filled)

	b.lastRendered = fmt.Sprintf("%s [%s] %.1f%% | %s (%s) | Cycle: %s (avg %s)",
		b.message, bar, percent*100, b.stepMessage,
		time.Since(b.stepStart).Round(time.Second),
		time.Since(b.cycleStart).Round(time.Second),
		b.averageCycle())

	return b.lastRendered
}

func (b *Bar) averageCycle() string {
	if len(b.cycles) == 0 {
		return "-"
	}

	var total time.Duration
	for _, d := range b.cycles {
		total += d
	}

	return (total / time.Duration(len(b.cycles))).Round(time.Second).String()
}

// Reset records the finished cycle's duration and starts a new cycle.
func (b *Bar) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.cycles) >= maxCycleHistory {
		b.cycles = b.cycles[1:]
	}

	b.cycles = append(b.cycles, time.Since(b.cycleStart))

	b.current = 0
	b.stepMessage = ""
	b.stepStart = time.Now()
	b.cycleStart = time.Now()
}
