package producer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/camkit/mjpeg-streamer/internal/framesink"
	"github.com/camkit/mjpeg-streamer/internal/logger"
	"github.com/camkit/mjpeg-streamer/internal/metrics"
)

// PatternSource renders a color-bar test pattern with a frame counter and
// clock overlay, JPEG-encodes it and publishes at a fixed rate. It stands
// in for a camera when no hardware source is attached.
type PatternSource struct {
	sink    *framesink.Sink
	metrics *metrics.Metrics
	width   int
	height  int
	fps     int
	quality int
}

// NewPatternSource creates a synthetic source publishing to sink.
func NewPatternSource(sink *framesink.Sink, m *metrics.Metrics, width, height, fps int) *PatternSource {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	if fps <= 0 {
		fps = 30
	}
	return &PatternSource{
		sink:    sink,
		metrics: m,
		width:   width,
		height:  height,
		fps:     fps,
		quality: 75,
	}
}

// Run publishes frames until ctx is canceled. Every frame is rendered into
// a fresh buffer; published buffers are never reused.
func (p *PatternSource) Run(ctx context.Context) error {
	logger.Info("Pattern", "Starting test pattern source (%dx%d @ %dfps)", p.width, p.height, p.fps)

	ticker := time.NewTicker(time.Second / time.Duration(p.fps))
	defer ticker.Stop()

	var frameNum uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frameNum++
			data, err := p.render(frameNum)
			if err != nil {
				p.metrics.PublishErrors.Add(1)
				logger.Warn("Pattern", "Render error: %v", err)
				continue
			}
			p.sink.Publish(data)
			p.metrics.FramesPublished.Add(1)
		}
	}
}

// render draws the color bars and the stats overlay, then JPEG-encodes.
func (p *PatternSource) render(frameNum uint64) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))

	// Color bars: White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
	colors := []color.RGBA{
		{R: 255, G: 255, B: 255, A: 255}, // White
		{R: 255, G: 255, B: 0, A: 255},   // Yellow
		{R: 0, G: 255, B: 255, A: 255},   // Cyan
		{R: 0, G: 255, B: 0, A: 255},     // Green
		{R: 255, G: 0, B: 255, A: 255},   // Magenta
		{R: 255, G: 0, B: 0, A: 255},     // Red
		{R: 0, G: 0, B: 255, A: 255},     // Blue
		{R: 0, G: 0, B: 0, A: 255},       // Black
	}

	barWidth := p.width / len(colors)
	if barWidth < 1 {
		barWidth = 1
	}
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			barIndex := x / barWidth
			if barIndex >= len(colors) {
				barIndex = len(colors) - 1
			}
			img.Set(x, y, colors[barIndex])
		}
	}

	stats := fmt.Sprintf("Frame: %d  Time: %s", frameNum, time.Now().Format("2006/01/02 15:04:05"))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, p.height-10),
	}
	drawer.DrawString(stats)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
