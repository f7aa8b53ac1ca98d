// Package audio converts, paces and schedules PCM audio exchanged with the
// live model session.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// EncodePCM16 converts samples in [-1, 1] into 16-bit little-endian PCM.
// Out of range samples are clamped; negative values scale by 0x8000 and
// positive values by 0x7FFF.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// DecodePCM16 converts 16-bit little-endian PCM into samples in [-1, 1).
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return out
}

// EncodeBase64 returns the wire form of a frame
func EncodeBase64(frame repositories.AudioFrame) string {
	return base64.StdEncoding.EncodeToString(frame.Data)
}

// DecodeBase64 parses the wire form of a frame recorded at sampleRate
func DecodeBase64(data string, sampleRate int) (repositories.AudioFrame, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return repositories.AudioFrame{}, fmt.Errorf("failed to decode audio frame: %w", err)
	}
	return repositories.AudioFrame{Data: raw, SampleRate: sampleRate}, nil
}

func floatToInt16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}

	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}
