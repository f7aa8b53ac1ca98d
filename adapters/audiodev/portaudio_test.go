package audiodev

import (
	"testing"

	"go.uber.org/zap"
)

func TestHost_ReferenceCounting(t *testing.T) {
	host := NewHost(zap.NewNop())

	// releasing an unused host is a no-op
	host.release()
	if host.refs != 0 {
		t.Fatalf("Expected 0 refs, got %d", host.refs)
	}

	if err := host.acquire(); err != nil {
		t.Skipf("Skipping - no audio host available: %v", err)
	}
	if err := host.acquire(); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}
	if host.refs != 2 {
		t.Errorf("Expected 2 refs, got %d", host.refs)
	}

	host.release()
	host.release()
	if host.refs != 0 {
		t.Errorf("Expected 0 refs after release, got %d", host.refs)
	}
}

func TestHost_OpenWithoutDevice(t *testing.T) {
	host := NewHost(zap.NewNop())

	stream, err := host.Microphone().Open(16000, 4096, func([]float32) {})
	if err != nil {
		if host.refs != 0 {
			t.Errorf("Failed open must not leak a host reference, refs=%d", host.refs)
		}
		t.Skipf("Skipping - no input device: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Second close must be a no-op, got %v", err)
	}
	if host.refs != 0 {
		t.Errorf("Expected 0 refs after close, got %d", host.refs)
	}
}
