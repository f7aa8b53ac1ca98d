package repositories

// Audio sample rates used on the wire
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
)

// AudioFrame is a chunk of 16-bit little-endian mono PCM
type AudioFrame struct {
	Data       []byte
	SampleRate int
}

// Microphone abstracts an audio input device
type Microphone interface {
	// Open starts capturing. onBlock is invoked from the device thread with
	// blockSize samples in [-1, 1] and must not block.
	Open(sampleRate, blockSize int, onBlock func(samples []float32)) (AudioStream, error)
}

// Speaker abstracts an audio output device
type Speaker interface {
	// Start begins pulling blocks. render is invoked from the device thread
	// and must fill out completely.
	Start(sampleRate, blockSize int, render func(out []float32)) (AudioStream, error)
}

// AudioStream is an open device stream
type AudioStream interface {
	Close() error
}
