package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Control messages sent by UI clients
const (
	MessageTypeConnect        MessageType = "connect"
	MessageTypeDisconnect     MessageType = "disconnect"
	MessageTypeListeningStart MessageType = "listening_start"
	MessageTypeListeningEnd   MessageType = "listening_end"
	MessageTypeText           MessageType = "text"
	MessageTypeAudioChunk     MessageType = "audio_chunk"
	MessageTypePing           MessageType = "ping"
)

// Events broadcast to UI clients
const (
	MessageTypeState            MessageType = "state"
	MessageTypeUserMessage      MessageType = "user_message"
	MessageTypeAssistantMessage MessageType = "assistant_message"
	MessageTypeDiagramChanged   MessageType = "diagram_changed"
	MessageTypeSessionChanged   MessageType = "session_changed"
	MessageTypePong             MessageType = "pong"
	MessageTypeError            MessageType = "error"
)

// maxTextLength bounds a typed user turn
const maxTextLength = 4000

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// ControlMessage carries a control request without payload
type ControlMessage struct {
	BaseMessage
}

// TextMessage is a typed user turn
type TextMessage struct {
	BaseMessage
	Text string `json:"text" validate:"required"`
}

// AudioChunkMessage carries one microphone frame captured by the browser
type AudioChunkMessage struct {
	BaseMessage
	AudioData  string `json:"audio_data" validate:"required"` // base64 encoded s16le PCM
	SampleRate int    `json:"sample_rate,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	ChunkSeq   int    `json:"chunk_sequence" validate:"min=0"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// StateMessage reports the live session state
type StateMessage struct {
	BaseMessage
	State     string `json:"state"`
	Listening bool   `json:"listening"`
}

// ChatMessage is a finalized user or assistant message
type ChatMessage struct {
	BaseMessage
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

// SessionEventMessage announces a change to a session or its diagram
type SessionEventMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming control message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeConnect, MessageTypeDisconnect, MessageTypeListeningStart, MessageTypeListeningEnd:
		return &ControlMessage{BaseMessage: base}, nil

	case MessageTypeText:
		var msg TextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid text message: %w", err)
		}
		if err := v.validateText(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeAudioChunk:
		var msg AudioChunkMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio chunk message: %w", err)
		}
		if err := v.validateAudioChunk(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateText(msg *TextMessage) error {
	if msg.Text == "" {
		return fmt.Errorf("text is required")
	}
	if len(msg.Text) > maxTextLength {
		return fmt.Errorf("text must be at most %d bytes", maxTextLength)
	}
	return nil
}

// validateAudioChunk validates audio chunk message fields. The live session
// only accepts 16 kHz PCM, so other rates and encodings are rejected.
func (v *MessageValidator) validateAudioChunk(msg *AudioChunkMessage) error {
	if msg.AudioData == "" {
		return fmt.Errorf("audio_data is required")
	}
	if msg.SampleRate == 0 {
		msg.SampleRate = repositories.CaptureSampleRate
	}
	if msg.SampleRate != repositories.CaptureSampleRate {
		return fmt.Errorf("sample_rate must be %d", repositories.CaptureSampleRate)
	}
	if msg.Encoding != "" && msg.Encoding != "pcm" {
		return fmt.Errorf("encoding must be pcm")
	}
	if msg.ChunkSeq < 0 {
		return fmt.Errorf("chunk_sequence must not be negative")
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateStateMessage creates a live session state event
func CreateStateMessage(state string, listening bool) *StateMessage {
	return &StateMessage{
		BaseMessage: newBase(MessageTypeState),
		State:       state,
		Listening:   listening,
	}
}

// CreateChatMessage creates a user_message or assistant_message event
func CreateChatMessage(t MessageType, sessionID, text string) *ChatMessage {
	return &ChatMessage{
		BaseMessage: newBase(t),
		SessionID:   sessionID,
		Text:        text,
	}
}

// CreateSessionEventMessage creates a diagram_changed or session_changed event
func CreateSessionEventMessage(t MessageType, sessionID string) *SessionEventMessage {
	return &SessionEventMessage{
		BaseMessage: newBase(t),
		SessionID:   sessionID,
	}
}
