package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// DefaultSessionName is used for the session created when none exist
const DefaultSessionName = "My First Diagram"

// Message represents a single finalized conversation message
type Message struct {
	ID        string      `json:"id" bson:"id"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
}

// Version is an immutable snapshot of a session diagram
type Version struct {
	ID         string    `json:"id" bson:"id"`
	DiagramXML string    `json:"bpmnXml" bson:"bpmn_xml"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	Label      string    `json:"label,omitempty" bson:"label,omitempty"`
}

// Session represents a named diagram with its conversation and version history
type Session struct {
	ID         string    `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	DiagramXML string    `json:"bpmnXml" bson:"bpmn_xml"`
	Messages   []Message `json:"messages" bson:"messages"`
	Versions   []Version `json:"versions" bson:"versions"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updated_at"`
}

// NewSession creates a new session holding the given diagram
func NewSession(name, diagramXML string) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Name:       name,
		DiagramXML: diagramXML,
		Messages:   make([]Message, 0),
		Versions:   make([]Version, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewMessage creates a message stamped with the current time
func NewMessage(role MessageRole, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Touch bumps the last update timestamp
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// AddMessage appends a message to the session history
func (s *Session) AddMessage(message Message) {
	s.Messages = append(s.Messages, message)
	s.Touch()
}

// LatestVersion returns the most recent snapshot, or nil when there is none
func (s *Session) LatestVersion() *Version {
	if len(s.Versions) == 0 {
		return nil
	}
	return &s.Versions[len(s.Versions)-1]
}

// AddVersion snapshots the current diagram. It returns false without
// appending when the diagram is identical to the latest snapshot.
func (s *Session) AddVersion(label string) (Version, bool) {
	if latest := s.LatestVersion(); latest != nil && latest.DiagramXML == s.DiagramXML {
		return *latest, false
	}

	version := Version{
		ID:         uuid.NewString(),
		DiagramXML: s.DiagramXML,
		Timestamp:  time.Now(),
		Label:      label,
	}
	s.Versions = append(s.Versions, version)
	s.Touch()
	return version, true
}

// FindVersion looks up a snapshot by id
func (s *Session) FindVersion(id string) (Version, bool) {
	for _, v := range s.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return Version{}, false
}

// RemoveVersion deletes a snapshot by id
func (s *Session) RemoveVersion(id string) bool {
	for i, v := range s.Versions {
		if v.ID == id {
			s.Versions = append(s.Versions[:i:i], s.Versions[i+1:]...)
			s.Touch()
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out to callers
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	c.Versions = append(make([]Version, 0, len(s.Versions)), s.Versions...)
	return &c
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}

	if s.Name == "" {
		return errors.New("name is required")
	}

	for _, m := range s.Messages {
		if m.Role != MessageRoleUser && m.Role != MessageRoleAssistant {
			return errors.New("invalid message role")
		}
	}

	return nil
}
