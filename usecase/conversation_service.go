package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/audio"
	"github.com/satriahrh/bpmn-voice/internal/metrics"
	"github.com/satriahrh/bpmn-voice/internal/tools"
	"github.com/satriahrh/bpmn-voice/internal/transcript"
)

// ConnectionState is the lifecycle state of the live session
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// DefaultConnectWait bounds how long StartListening and SendText wait for an
// implicit connect to finish.
const DefaultConnectWait = 5 * time.Second

// ConversationCallbacks receives everything the conversation produces.
// Callbacks run on the receive goroutine and must not block for long.
type ConversationCallbacks struct {
	OnUserMessage      func(text string)
	OnAssistantMessage func(text string)
	OnStateChange      func(state ConnectionState)
	// OnTurnComplete reports the finalized turn and whether it ran at least
	// one successful diagram mutation
	OnTurnComplete func(turn transcript.Turn, mutated bool)
}

// ConversationConfig wires a ConversationService
type ConversationConfig struct {
	Dialer      repositories.LiveDialer
	Dispatcher  *tools.Dispatcher
	Capture     *audio.Capture
	Playback    *audio.Scheduler
	ConnectWait time.Duration
	Callbacks   ConversationCallbacks
}

// ConversationService orchestrates one real-time voice session: connection
// lifecycle, microphone streaming, playback, transcripts and tool calls.
type ConversationService struct {
	dialer      repositories.LiveDialer
	dispatcher  *tools.Dispatcher
	capture     *audio.Capture
	playback    *audio.Scheduler
	connectWait time.Duration
	callbacks   ConversationCallbacks
	logger      *zap.Logger
	metrics     *metrics.Metrics

	mu          sync.Mutex
	state       ConnectionState
	stateCh     chan struct{}
	conn        repositories.LiveConnection
	generation  uint64
	dialing     bool
	cancelDial  context.CancelFunc
	listening   bool
	transcripts transcript.Accumulator
	turnMutated bool
}

// NewConversationService creates a new conversation service
func NewConversationService(cfg ConversationConfig, logger *zap.Logger, m *metrics.Metrics) *ConversationService {
	wait := cfg.ConnectWait
	if wait <= 0 {
		wait = DefaultConnectWait
	}
	return &ConversationService{
		dialer:      cfg.Dialer,
		dispatcher:  cfg.Dispatcher,
		capture:     cfg.Capture,
		playback:    cfg.Playback,
		connectWait: wait,
		callbacks:   cfg.Callbacks,
		logger:      logger,
		metrics:     m,
		state:       StateDisconnected,
		stateCh:     make(chan struct{}),
	}
}

// State returns the current connection state
func (s *ConversationService) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Listening reports whether audio is being streamed to the model
func (s *ConversationService) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Connect starts opening a live session in the background. It is a no-op
// while a session exists or a dial is in flight.
func (s *ConversationService) Connect() {
	s.mu.Lock()
	if s.conn != nil || s.dialing {
		s.mu.Unlock()
		return
	}

	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.dialing = true
	s.cancelDial = cancel
	notify := s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	notify()
	s.logger.Info("Connecting live session")
	go s.dial(ctx, gen)
}

func (s *ConversationService) dial(ctx context.Context, gen uint64) {
	conn, err := s.dialer.Dial(ctx)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		s.logger.Debug("Discarding dial result of a torn down connection")
		return
	}

	s.dialing = false
	s.cancelDial = nil
	if err != nil {
		notify := s.setStateLocked(StateError)
		s.mu.Unlock()

		notify()
		s.logger.Error("Failed to connect live session", zap.Error(err))
		return
	}

	s.conn = conn
	notify := s.setStateLocked(StateConnected)
	s.mu.Unlock()

	notify()
	s.logger.Info("Live session connected")
	go s.receiveLoop(gen, conn)
}

// Disconnect tears everything down: capture, playback, the remote session
// and transcripts. It is safe to call from any state, any number of times.
func (s *ConversationService) Disconnect() {
	s.mu.Lock()
	s.generation++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	conn := s.conn
	s.conn = nil
	s.dialing = false
	s.listening = false
	s.turnMutated = false
	s.transcripts.Reset()
	notify := s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	s.releaseAudio()
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Ignoring close error", zap.Error(err))
		}
		s.logger.Info("Live session disconnected")
	}
	notify()
}

// StartListening streams microphone audio to the model, connecting first if
// needed. It reports false when no session could be established or the
// microphone could not be opened.
func (s *ConversationService) StartListening(ctx context.Context) bool {
	if !s.ensureConnected(ctx) {
		s.logger.Warn("Cannot start listening without a live session")
		return false
	}

	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return true
	}
	s.listening = true
	gen := s.generation
	s.mu.Unlock()

	if s.capture == nil {
		return true
	}

	err := s.capture.Start(func(frame repositories.AudioFrame) {
		s.sendAudio(gen, frame)
	})
	if err != nil {
		s.mu.Lock()
		s.listening = false
		s.mu.Unlock()
		s.logger.Error("Failed to start audio capture", zap.Error(err))
		return false
	}

	s.mu.Lock()
	stale := gen != s.generation || !s.listening
	s.mu.Unlock()
	if stale {
		s.capture.Stop()
		s.logger.Info("Session ended while the microphone was opening")
		return false
	}

	s.logger.Info("Listening started")
	return true
}

// StopListening stops streaming microphone audio. Safe to call when not listening.
func (s *ConversationService) StopListening() {
	s.mu.Lock()
	was := s.listening
	s.listening = false
	s.mu.Unlock()

	if s.capture != nil {
		s.capture.Stop()
	}
	if was {
		s.logger.Info("Listening stopped")
	}
}

// SendAudioFrame forwards an externally captured frame while listening. It
// reports false when the frame was not sent.
func (s *ConversationService) SendAudioFrame(frame repositories.AudioFrame) bool {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return false
	}
	gen := s.generation
	s.mu.Unlock()

	return s.sendAudio(gen, frame)
}

// SendText sends a typed user turn, connecting first if needed. The text is
// echoed through OnUserMessage before it is sent.
func (s *ConversationService) SendText(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	if !s.ensureConnected(ctx) {
		s.logger.Warn("Cannot send text without a live session")
		return false
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}

	s.emit(s.callbacks.OnUserMessage, text)
	if err := conn.SendText(text); err != nil {
		s.logger.Error("Failed to send text", zap.Error(err))
		return false
	}
	return true
}

// ensureConnected connects when needed and waits for a terminal state,
// bounded by ctx and the connect wait.
func (s *ConversationService) ensureConnected(ctx context.Context) bool {
	s.Connect()

	timer := time.NewTimer(s.connectWait)
	defer timer.Stop()

	for {
		s.mu.Lock()
		state, changed, conn, dialing := s.state, s.stateCh, s.conn, s.dialing
		s.mu.Unlock()

		if state == StateConnected && conn != nil {
			return true
		}
		if !dialing && (state == StateError || state == StateDisconnected) {
			return false
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		}
	}
}

func (s *ConversationService) sendAudio(gen uint64, frame repositories.AudioFrame) bool {
	s.mu.Lock()
	if gen != s.generation || s.conn == nil {
		s.mu.Unlock()
		return false
	}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.SendAudio(frame); err != nil {
		s.logger.Debug("Failed to send audio frame", zap.Error(err))
		s.metrics.AudioFrameDropped()
		return false
	}
	s.metrics.AudioFrameSent()
	return true
}

func (s *ConversationService) receiveLoop(gen uint64, conn repositories.LiveConnection) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			s.handleReceiveError(gen, err)
			return
		}
		if !s.current(gen) {
			return
		}
		if msg != nil {
			s.handleMessage(gen, conn, msg)
		}
	}
}

func (s *ConversationService) handleReceiveError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}

	s.generation++
	conn := s.conn
	s.conn = nil
	s.listening = false
	s.turnMutated = false
	s.transcripts.Reset()

	next := StateError
	if errors.Is(err, repositories.ErrConnectionClosed) {
		next = StateDisconnected
	}
	notify := s.setStateLocked(next)
	s.mu.Unlock()

	if next == StateError {
		s.logger.Error("Live session failed", zap.Error(err))
	} else {
		s.logger.Info("Live session closed by remote")
	}

	s.releaseAudio()
	if conn != nil {
		_ = conn.Close()
	}
	notify()
}

// handleMessage applies the five independent parts of a server message in
// order: tool calls, audio, transcripts, interruption, turn completion.
func (s *ConversationService) handleMessage(gen uint64, conn repositories.LiveConnection, msg *repositories.ServerMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic while handling server message", zap.Any("panic", r))
		}
	}()

	if msg.SetupComplete {
		s.logger.Debug("Live session setup complete")
	}

	if len(msg.FunctionCalls) > 0 {
		s.handleToolCalls(gen, conn, msg.FunctionCalls)
	}

	for _, frame := range msg.Audio {
		if s.playback != nil {
			s.playback.Enqueue(frame)
		}
	}

	if msg.InputTranscription != "" || msg.OutputTranscription != "" {
		s.mu.Lock()
		s.transcripts.AppendInput(msg.InputTranscription)
		s.transcripts.AppendOutput(msg.OutputTranscription)
		s.mu.Unlock()
	}

	if msg.Interrupted {
		if s.playback != nil {
			s.playback.Interrupt()
		}
		s.mu.Lock()
		s.transcripts.Interrupt()
		s.mu.Unlock()
		s.logger.Debug("Model turn interrupted")
	}

	if msg.TurnComplete {
		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		turn := s.transcripts.Complete()
		mutated := s.turnMutated
		s.turnMutated = false
		s.mu.Unlock()

		if turn.User != "" {
			s.emit(s.callbacks.OnUserMessage, turn.User)
		}
		if turn.Assistant != "" {
			s.emit(s.callbacks.OnAssistantMessage, turn.Assistant)
		}
		s.metrics.TurnCompleted()
		if s.callbacks.OnTurnComplete != nil {
			s.callbacks.OnTurnComplete(turn, mutated)
		}
	}
}

func (s *ConversationService) handleToolCalls(gen uint64, conn repositories.LiveConnection, calls []repositories.FunctionCall) {
	ctx := context.Background()
	results := make([]repositories.FunctionResult, 0, len(calls))

	for _, call := range calls {
		s.emit(s.callbacks.OnAssistantMessage, fmt.Sprintf("Executing: `%s`", call.Name))

		result := s.dispatcher.Dispatch(ctx, call)
		if tools.IsMutating(call.Name) && tools.Succeeded(result.Response) {
			s.mu.Lock()
			if gen == s.generation {
				s.turnMutated = true
			}
			s.mu.Unlock()
		}
		results = append(results, result)
	}

	if !s.current(gen) {
		return
	}
	if err := conn.SendToolResults(results); err != nil {
		s.logger.Error("Failed to send tool results", zap.Int("count", len(results)), zap.Error(err))
	}
}

func (s *ConversationService) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *ConversationService) releaseAudio() {
	if s.capture != nil {
		s.capture.Stop()
	}
	if s.playback != nil {
		s.playback.Interrupt()
	}
}

// setStateLocked moves to state and returns the function that notifies
// observers. The caller invokes it after releasing the lock.
func (s *ConversationService) setStateLocked(state ConnectionState) func() {
	if s.state == state {
		return func() {}
	}
	s.state = state
	close(s.stateCh)
	s.stateCh = make(chan struct{})
	s.metrics.ConnectionState(string(state))

	cb := s.callbacks.OnStateChange
	return func() {
		if cb != nil {
			cb(state)
		}
	}
}

func (s *ConversationService) emit(fn func(string), text string) {
	if fn != nil {
		fn(text)
	}
}
