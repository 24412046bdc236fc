package producer

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/camkit/mjpeg-streamer/internal/framesink"
	"github.com/camkit/mjpeg-streamer/internal/logger"
	"github.com/camkit/mjpeg-streamer/internal/metrics"
)

// jpegEOI marks the end of one JPEG image in a concatenated stream.
var jpegEOI = []byte{0xFF, 0xD9}

// defaultMaxFrameSize bounds a single JPEG frame read from the pipe.
const defaultMaxFrameSize = 8 << 20

// PipeSource publishes frames from a concatenated JPEG stream, such as the
// stdout of `rpicam-vid --codec mjpeg -o -` or a FIFO fed by an external
// encoder.
type PipeSource struct {
	sink     *framesink.Sink
	metrics  *metrics.Metrics
	r        io.Reader
	maxFrame int
}

// NewPipeSource creates a source reading concatenated JPEG frames from r.
func NewPipeSource(sink *framesink.Sink, m *metrics.Metrics, r io.Reader) *PipeSource {
	return &PipeSource{
		sink:     sink,
		metrics:  m,
		r:        r,
		maxFrame: defaultMaxFrameSize,
	}
}

// Run reads and publishes frames until the stream ends or ctx is canceled.
func (p *PipeSource) Run(ctx context.Context) error {
	logger.Info("Pipe", "Starting pipe source")

	scanner := bufio.NewScanner(p.r)
	scanner.Buffer(make([]byte, 64*1024), p.maxFrame)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		token := scanner.Bytes()
		// The scanner reuses its buffer between frames; the sink requires a
		// buffer it exclusively owns.
		data := make([]byte, len(token))
		copy(data, token)

		p.sink.Publish(data)
		p.metrics.FramesPublished.Add(1)
	}
	if err := scanner.Err(); err != nil {
		p.metrics.PublishErrors.Add(1)
		return err
	}
	logger.Info("Pipe", "Pipe source ended")
	return nil
}

// splitJPEG is a bufio.SplitFunc cutting a concatenated JPEG stream into
// individual frames at the EOI trailer. A trailing partial frame at EOF is
// dropped.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, jpegEOI); i >= 0 {
		return i + 2, data[0 : i+2], nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	// Request more data.
	return 0, nil, nil
}
