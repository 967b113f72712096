package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const renderInterval = 100 * time.Millisecond

// Renderer redraws a set of progress bars in place.
type Renderer struct {
	bars   []*Bar
	output io.Writer
	drawn  bool
	mu     sync.Mutex
}

// NewRenderer creates a Renderer writing to stdout.
func NewRenderer(bars []*Bar) *Renderer {
	return &Renderer{
		bars:   bars,
		output: os.Stdout,
	}
}

// NewRendererTo creates a Renderer writing to w.
func NewRendererTo(bars []*Bar, w io.Writer) *Renderer {
	return &Renderer{
		bars:   bars,
		output: w,
	}
}

// Render redraws the bars until ctx is cancelled.
func (r *Renderer) Render(ctx context.Context) {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	for {
		r.Draw()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Draw replaces the previously drawn bars with their current state.
func (r *Renderer) Draw() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()

	for _, bar := range r.bars {
		_, _ = fmt.Fprintln(r.output, bar.String())
	}

	r.drawn = true
}

// Stop clears the bars from the screen.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()
	r.drawn = false
}

func (r *Renderer) clear() {
	if !r.drawn {
		return
	}

	for range r.bars {
		_, _ = fmt.Fprint(r.output, "\033[1A\033[K")
	}
}
