package audio

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/metrics"
)

func TestEncodePCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"silence", 0, 0},
		{"full positive", 1, 0x7FFF},
		{"full negative", -1, -0x8000},
		{"clamped positive", 2.5, 0x7FFF},
		{"clamped negative", -3, -0x8000},
		{"half positive", 0.5, 16383},
		{"half negative", -0.5, -16384},
		{"nan", float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EncodePCM16([]float32{tt.in})
			require.Len(t, out, 2)
			got := int16(uint16(out[0]) | uint16(out[1])<<8)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodePCM16(t *testing.T) {
	data := []byte{0x00, 0x80, 0xFF, 0x7F, 0x00, 0x00, 0x01}
	got := DecodePCM16(data)

	require.Len(t, got, 3)
	assert.Equal(t, float32(-1), got[0])
	assert.InDelta(t, 0.99997, got[1], 0.0001)
	assert.Equal(t, float32(0), got[2])
}

func TestBase64RoundTrip(t *testing.T) {
	frame := repositories.AudioFrame{Data: EncodePCM16([]float32{0.1, -0.2, 0.3}), SampleRate: 16000}

	decoded, err := DecodeBase64(EncodeBase64(frame), 16000)
	require.NoError(t, err)
	assert.Equal(t, frame, decoded)

	_, err = DecodeBase64("not base64!", 16000)
	assert.Error(t, err)
}

type fakeMic struct {
	mu      sync.Mutex
	onBlock func([]float32)
	opened  int
	closed  int
	err     error
}

func (m *fakeMic) Open(sampleRate, blockSize int, onBlock func([]float32)) (repositories.AudioStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.opened++
	m.onBlock = onBlock
	return micStream{m}, nil
}

func (m *fakeMic) emit(samples []float32) {
	m.mu.Lock()
	fn := m.onBlock
	m.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

type micStream struct{ m *fakeMic }

func (s micStream) Close() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.closed++
	return nil
}

func TestCapture_EmitsFramesWhileListening(t *testing.T) {
	mic := &fakeMic{}
	capture := NewCapture(mic, DefaultCaptureConfig(), zap.NewNop(), metrics.NewNop())

	frames := make(chan repositories.AudioFrame, 4)
	require.NoError(t, capture.Start(func(f repositories.AudioFrame) { frames <- f }))
	assert.True(t, capture.Listening())

	mic.emit([]float32{1, -1})

	select {
	case f := <-frames:
		assert.Equal(t, 16000, f.SampleRate)
		assert.Equal(t, []byte{0xFF, 0x7F, 0x00, 0x80}, f.Data)
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}

	capture.Stop()
	assert.False(t, capture.Listening())

	mic.emit([]float32{0.5})
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame after stop: %v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCapture_StartIsIdempotent(t *testing.T) {
	mic := &fakeMic{}
	capture := NewCapture(mic, DefaultCaptureConfig(), zap.NewNop(), metrics.NewNop())

	require.NoError(t, capture.Start(func(repositories.AudioFrame) {}))
	require.NoError(t, capture.Start(func(repositories.AudioFrame) {}))
	assert.Equal(t, 1, mic.opened)

	capture.Stop()
	capture.Stop()
	assert.Equal(t, 1, mic.closed)
}

func TestCapture_DeviceError(t *testing.T) {
	mic := &fakeMic{err: errors.New("permission denied")}
	capture := NewCapture(mic, DefaultCaptureConfig(), zap.NewNop(), metrics.NewNop())

	err := capture.Start(func(repositories.AudioFrame) {})
	assert.ErrorContains(t, err, "permission denied")
	assert.False(t, capture.Listening())
	capture.Stop()
}

func TestCapture_DropsWhenSlotBusy(t *testing.T) {
	mic := &fakeMic{}
	capture := NewCapture(mic, DefaultCaptureConfig(), zap.NewNop(), metrics.NewNop())

	release := make(chan struct{})
	var mu sync.Mutex
	var sent int
	require.NoError(t, capture.Start(func(repositories.AudioFrame) {
		<-release
		mu.Lock()
		sent++
		mu.Unlock()
	}))

	for i := 0; i < 10; i++ {
		mic.emit([]float32{0})
	}
	close(release)
	time.Sleep(50 * time.Millisecond)
	capture.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, sent, 2)
	assert.GreaterOrEqual(t, sent, 1)
}

func pcmOf(n int, value float32) repositories.AudioFrame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	return repositories.AudioFrame{Data: EncodePCM16(samples), SampleRate: 24000}
}

func newTestScheduler() *Scheduler {
	return NewScheduler(24000, zap.NewNop(), metrics.NewNop())
}

func TestScheduler_GaplessSequence(t *testing.T) {
	s := newTestScheduler()

	starts := []time.Duration{
		s.Enqueue(pcmOf(2400, 0.5)),
		s.Enqueue(pcmOf(4800, 0.5)),
		s.Enqueue(pcmOf(2400, 0.5)),
	}

	assert.Equal(t, []time.Duration{0, 100 * time.Millisecond, 300 * time.Millisecond}, starts)
	assert.Equal(t, 400*time.Millisecond, s.Cursor())
	assert.Equal(t, 3, s.Pending())
}

func TestScheduler_RenderPlaysContiguously(t *testing.T) {
	s := newTestScheduler()
	s.Enqueue(pcmOf(3, 0.5))
	s.Enqueue(pcmOf(3, -0.5))

	out := make([]float32, 4)
	s.Render(out)
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.5, -0.5}, out, 0.001)
	assert.Equal(t, 1, s.Pending())

	s.Render(out)
	assert.InDeltaSlice(t, []float32{-0.5, -0.5, 0, 0}, out, 0.001)
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_StartsAtNowWhenIdle(t *testing.T) {
	s := newTestScheduler()
	s.Render(make([]float32, 2400))

	start := s.Enqueue(pcmOf(240, 0.1))
	assert.Equal(t, 100*time.Millisecond, start)
	assert.Equal(t, 110*time.Millisecond, s.Cursor())
}

func TestScheduler_Interrupt(t *testing.T) {
	s := newTestScheduler()
	s.Enqueue(pcmOf(24000, 0.5))
	s.Enqueue(pcmOf(24000, 0.5))
	s.Render(make([]float32, 1200))

	s.Interrupt()
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, s.Now(), s.Cursor())

	out := make([]float32, 10)
	s.Render(out)
	assert.Equal(t, make([]float32, 10), out)

	start := s.Enqueue(pcmOf(10, 0.5))
	assert.Equal(t, 50*time.Millisecond+time.Duration(10)*time.Second/24000, start)
}

func TestScheduler_ZeroLengthFrame(t *testing.T) {
	s := newTestScheduler()
	start := s.Enqueue(repositories.AudioFrame{})
	assert.Equal(t, time.Duration(0), start)
	assert.Equal(t, time.Duration(0), s.Cursor())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_EnqueueBase64(t *testing.T) {
	s := newTestScheduler()
	_, err := s.EnqueueBase64(EncodeBase64(pcmOf(48, 0.2)))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, s.Cursor())

	_, err = s.EnqueueBase64("%%%")
	assert.Error(t, err)
}

func TestScheduler_AttachNullSpeaker(t *testing.T) {
	s := newTestScheduler()
	stream, err := s.Attach(NullSpeaker{}, 240)
	require.NoError(t, err)
	defer stream.Close()

	assert.Eventually(t, func() bool {
		return s.Now() > 0
	}, time.Second, 5*time.Millisecond)
}
