// Package audiodev connects the audio pipeline to the host sound devices
// through PortAudio.
package audiodev

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// Host initializes PortAudio on first use and terminates it when the last
// open stream is closed.
type Host struct {
	logger *zap.Logger

	mu   sync.Mutex
	refs int
}

// NewHost creates a new PortAudio host
func NewHost(logger *zap.Logger) *Host {
	return &Host{logger: logger}
}

func (h *Host) acquire() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize audio host: %w", err)
		}
		h.logger.Debug("Audio host initialized")
	}
	h.refs++
	return nil
}

func (h *Host) release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		return
	}
	h.refs--
	if h.refs == 0 {
		if err := portaudio.Terminate(); err != nil {
			h.logger.Warn("Failed to terminate audio host", zap.Error(err))
		}
		h.logger.Debug("Audio host terminated")
	}
}

// Microphone returns the default input device
func (h *Host) Microphone() repositories.Microphone {
	return microphone{host: h}
}

// Speaker returns the default output device
func (h *Host) Speaker() repositories.Speaker {
	return speaker{host: h}
}

type microphone struct{ host *Host }

// Open implements repositories.Microphone
func (m microphone) Open(sampleRate, blockSize int, onBlock func(samples []float32)) (repositories.AudioStream, error) {
	return m.host.open(1, 0, sampleRate, blockSize, func(in []float32) {
		onBlock(in)
	})
}

type speaker struct{ host *Host }

// Start implements repositories.Speaker
func (s speaker) Start(sampleRate, blockSize int, render func(out []float32)) (repositories.AudioStream, error) {
	return s.host.open(0, 1, sampleRate, blockSize, func(out []float32) {
		render(out)
	})
}

func (h *Host) open(inputs, outputs, sampleRate, blockSize int, callback interface{}) (repositories.AudioStream, error) {
	if err := h.acquire(); err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenDefaultStream(inputs, outputs, float64(sampleRate), blockSize, callback)
	if err != nil {
		h.release()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		h.release()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	h.logger.Info("Audio stream started",
		zap.Int("inputs", inputs),
		zap.Int("outputs", outputs),
		zap.Int("sampleRate", sampleRate),
		zap.Int("blockSize", blockSize))

	return &deviceStream{stream: stream, host: h}, nil
}

type deviceStream struct {
	stream *portaudio.Stream
	host   *Host
	once   sync.Once
}

// Close stops the stream, releases the device and drops the host reference
func (d *deviceStream) Close() error {
	var err error
	d.once.Do(func() {
		if stopErr := d.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop audio stream: %w", stopErr)
		}
		if closeErr := d.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close audio stream: %w", closeErr)
		}
		d.host.release()
	})
	return err
}
