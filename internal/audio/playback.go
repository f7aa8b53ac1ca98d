package audio

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/metrics"
)

// DefaultPlaybackBlockSize is the number of samples rendered per device callback
const DefaultPlaybackBlockSize = 1024

type unit struct {
	start   int64
	samples []float32
}

// Scheduler plays inbound frames back to back on a sample-accurate clock.
// The clock counts samples pulled by the output device; each frame starts at
// max(cursor, clock) and pushes the cursor past its end, so consecutive
// frames play without gaps or overlap.
type Scheduler struct {
	sampleRate int
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu     sync.Mutex
	clock  int64
	cursor int64
	live   []*unit
}

// NewScheduler creates a playback scheduler running at sampleRate
func NewScheduler(sampleRate int, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		sampleRate: sampleRate,
		logger:     logger,
		metrics:    m,
	}
}

// Enqueue schedules a PCM frame and returns the clock time it will start at.
// Frames are always interpreted at the scheduler sample rate.
func (s *Scheduler) Enqueue(frame repositories.AudioFrame) time.Duration {
	if frame.SampleRate != 0 && frame.SampleRate != s.sampleRate {
		s.logger.Debug("Audio frame sample rate differs from playback rate",
			zap.Int("frameRate", frame.SampleRate),
			zap.Int("playbackRate", s.sampleRate))
	}

	samples := DecodePCM16(frame.Data)

	s.mu.Lock()
	start := max(s.cursor, s.clock)
	s.cursor = start + int64(len(samples))
	if len(samples) > 0 {
		s.live = append(s.live, &unit{start: start, samples: samples})
	}
	s.mu.Unlock()

	s.metrics.AudioFrameReceived()
	return s.duration(start)
}

// EnqueueBase64 decodes and schedules a base64 wire frame
func (s *Scheduler) EnqueueBase64(data string) (time.Duration, error) {
	frame, err := DecodeBase64(data, s.sampleRate)
	if err != nil {
		return 0, err
	}
	return s.Enqueue(frame), nil
}

// Render fills out with the next len(out) samples and advances the clock.
// Finished frames leave the live set.
func (s *Scheduler) Render(out []float32) {
	clear(out)

	s.mu.Lock()
	defer s.mu.Unlock()

	begin := s.clock
	end := begin + int64(len(out))

	kept := s.live[:0]
	for _, u := range s.live {
		uEnd := u.start + int64(len(u.samples))
		for t := max(begin, u.start); t < min(end, uEnd); t++ {
			out[t-begin] += u.samples[t-u.start]
		}
		if uEnd > end {
			kept = append(kept, u)
		}
	}
	for i := len(kept); i < len(s.live); i++ {
		s.live[i] = nil
	}
	s.live = kept
	s.clock = end
}

// Interrupt stops every scheduled frame and moves the cursor back to now
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	dropped := len(s.live)
	s.live = nil
	s.cursor = s.clock
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debug("Playback interrupted", zap.Int("droppedFrames", dropped))
	}
}

// Now returns the playback clock
func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration(s.clock)
}

// Cursor returns the time at which the next frame would start
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration(max(s.cursor, s.clock))
}

// Pending returns the number of frames that have not finished playing
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Attach starts pulling rendered audio from the scheduler through speaker
func (s *Scheduler) Attach(speaker repositories.Speaker, blockSize int) (repositories.AudioStream, error) {
	stream, err := speaker.Start(s.sampleRate, blockSize, s.Render)
	if err != nil {
		return nil, fmt.Errorf("failed to start audio output: %w", err)
	}
	return stream, nil
}

func (s *Scheduler) duration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(s.sampleRate)
}
