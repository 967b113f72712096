package progress_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/robalyx/decelerator/internal/progress"
	"github.com/stretchr/testify/assert"
)

func TestBar(t *testing.T) {
	t.Parallel()

	bar := progress.NewBar(4, 8, "example.social")
	bar.SetStepMessage("Draining")
	bar.Increment(1)

	out := bar.String()
	assert.Contains(t, out, "example.social [==------] 25.0%")
	assert.Contains(t, out, "Draining")

	bar.Increment(10)
	assert.Contains(t, bar.String(), "100.0%")

	bar.Reset()
	assert.Contains(t, bar.String(), "0.0%")
	assert.NotContains(t, bar.String(), "avg -")
}

func TestRendererClearsPreviousDraw(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	bars := []*progress.Bar{progress.NewBar(1, 4, "a"), progress.NewBar(1, 4, "b")}
	renderer := progress.NewRendererTo(bars, &buf)

	renderer.Draw()
	assert.Equal(t, 0, strings.Count(buf.String(), "\033[1A"))

	renderer.Draw()
	assert.Equal(t, 2, strings.Count(buf.String(), "\033[1A"))

	renderer.Stop()
	assert.Equal(t, 4, strings.Count(buf.String(), "\033[1A"))
}
