package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/metrics"
)

// CaptureConfig configures the microphone stream
type CaptureConfig struct {
	SampleRate int
	BlockSize  int
}

// DefaultCaptureConfig returns the 16 kHz mono configuration expected by the
// live session.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate: repositories.CaptureSampleRate,
		BlockSize:  4096,
	}
}

// Capture turns microphone blocks into outbound PCM frames. Frames are handed
// to a single sender goroutine through a one-slot queue, so the device
// callback never blocks and frames leave in capture order.
type Capture struct {
	mic     repositories.Microphone
	cfg     CaptureConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	recording atomic.Bool

	mu     sync.Mutex
	stream repositories.AudioStream
	done   chan struct{}
}

// NewCapture creates a new capture pipeline on top of mic
func NewCapture(mic repositories.Microphone, cfg CaptureConfig, logger *zap.Logger, m *metrics.Metrics) *Capture {
	return &Capture{
		mic:     mic,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Start opens the microphone and begins delivering frames to send. Calling
// Start while already listening is a no-op.
func (c *Capture) Start(send func(repositories.AudioFrame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil
	}

	frames := make(chan repositories.AudioFrame, 1)
	stream, err := c.mic.Open(c.cfg.SampleRate, c.cfg.BlockSize, func(samples []float32) {
		c.onBlock(frames, samples)
	})
	if err != nil {
		return fmt.Errorf("failed to open microphone: %w", err)
	}

	done := make(chan struct{})
	c.stream = stream
	c.done = done
	c.recording.Store(true)
	go c.pump(frames, done, send)

	c.logger.Info("Audio capture started",
		zap.Int("sampleRate", c.cfg.SampleRate),
		zap.Int("blockSize", c.cfg.BlockSize))
	return nil
}

// Stop clears the recording flag and releases the microphone. It is safe to
// call any number of times.
func (c *Capture) Stop() {
	c.recording.Store(false)

	c.mu.Lock()
	stream, done := c.stream, c.done
	c.stream, c.done = nil, nil
	c.mu.Unlock()

	if stream == nil {
		return
	}

	if err := stream.Close(); err != nil {
		c.logger.Warn("Failed to close microphone stream", zap.Error(err))
	}
	close(done)
	c.logger.Info("Audio capture stopped")
}

// Listening reports whether frames are currently being produced
func (c *Capture) Listening() bool {
	return c.recording.Load()
}

func (c *Capture) onBlock(frames chan<- repositories.AudioFrame, samples []float32) {
	if !c.recording.Load() {
		return
	}

	frame := repositories.AudioFrame{
		Data:       EncodePCM16(samples),
		SampleRate: c.cfg.SampleRate,
	}
	select {
	case frames <- frame:
	default:
		c.metrics.AudioFrameDropped()
	}
}

func (c *Capture) pump(frames <-chan repositories.AudioFrame, done <-chan struct{}, send func(repositories.AudioFrame)) {
	for {
		select {
		case <-done:
			return
		case frame := <-frames:
			select {
			case <-done:
				return
			default:
			}
			send(frame)
		}
	}
}
