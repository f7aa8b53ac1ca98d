package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// NullSpeaker discards rendered audio while pulling it in real time, which
// keeps the playback clock moving on hosts without an output device.
type NullSpeaker struct{}

// Start implements repositories.Speaker
func (NullSpeaker) Start(sampleRate, blockSize int, render func(out []float32)) (repositories.AudioStream, error) {
	if sampleRate <= 0 || blockSize <= 0 {
		return nil, errors.New("sample rate and block size must be positive")
	}

	period := time.Duration(blockSize) * time.Second / time.Duration(sampleRate)
	stream := &tickerStream{done: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		buf := make([]float32, blockSize)
		for {
			select {
			case <-stream.done:
				return
			case <-ticker.C:
				render(buf)
			}
		}
	}()

	return stream, nil
}

type tickerStream struct {
	once sync.Once
	done chan struct{}
}

func (s *tickerStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
