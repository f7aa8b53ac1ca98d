package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/diagram"
	"github.com/satriahrh/bpmn-voice/internal/tools"
)

// MockLiveDialer is an offline stand-in for the Gemini Live API. Every
// connection it opens understands a small set of typed commands such as
// "add a user task called Review" and answers everything else with an echo.
type MockLiveDialer struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns []*MockLiveConnection
	err   error
}

// NewMockLiveDialer creates a new mock live dialer
func NewMockLiveDialer(logger *zap.Logger) *MockLiveDialer {
	return &MockLiveDialer{logger: logger}
}

// FailWith makes subsequent dials return err. A nil err restores normal dialing.
func (d *MockLiveDialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dial implements repositories.LiveDialer
func (d *MockLiveDialer) Dial(ctx context.Context) (repositories.LiveConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}

	conn := NewMockLiveConnection()
	conn.Push(&repositories.ServerMessage{SetupComplete: true})
	d.conns = append(d.conns, conn)

	d.logger.Info("Mock live session opened", zap.Int("connections", len(d.conns)))
	return conn, nil
}

// Connections returns every connection opened so far
func (d *MockLiveDialer) Connections() []*MockLiveConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockLiveConnection(nil), d.conns...)
}

// Last returns the most recently opened connection
func (d *MockLiveDialer) Last() *MockLiveConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type inbound struct {
	msg *repositories.ServerMessage
	err error
}

// MockLiveConnection implements repositories.LiveConnection in memory.
// Tests can inject server messages with Push and Fail.
type MockLiveConnection struct {
	inbox     chan inbound
	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	audioFrames int
	texts       []string
	toolResults [][]repositories.FunctionResult
	pending     string
}

// NewMockLiveConnection creates a new in-memory live connection
func NewMockLiveConnection() *MockLiveConnection {
	return &MockLiveConnection{
		inbox:  make(chan inbound, 256),
		closed: make(chan struct{}),
	}
}

// Push queues a server message for Receive. It reports false once the
// connection is closed.
func (c *MockLiveConnection) Push(msg *repositories.ServerMessage) bool {
	return c.enqueue(inbound{msg: msg})
}

// Fail makes the next Receive return err
func (c *MockLiveConnection) Fail(err error) bool {
	return c.enqueue(inbound{err: err})
}

func (c *MockLiveConnection) enqueue(item inbound) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.inbox <- item:
		return true
	case <-c.closed:
		return false
	}
}

// Receive implements repositories.LiveConnection
func (c *MockLiveConnection) Receive() (*repositories.ServerMessage, error) {
	select {
	case item := <-c.inbox:
		return item.msg, item.err
	case <-c.closed:
		return nil, repositories.ErrConnectionClosed
	}
}

// SendAudio implements repositories.LiveConnection
func (c *MockLiveConnection) SendAudio(frame repositories.AudioFrame) error {
	if c.isClosed() {
		return repositories.ErrConnectionClosed
	}
	c.mu.Lock()
	c.audioFrames++
	c.mu.Unlock()
	return nil
}

// SendText implements repositories.LiveConnection
func (c *MockLiveConnection) SendText(text string) error {
	if c.isClosed() {
		return repositories.ErrConnectionClosed
	}

	c.mu.Lock()
	c.texts = append(c.texts, text)
	call, ok := parseCommand(text)
	if ok {
		c.pending = text
	}
	c.mu.Unlock()

	if ok {
		c.Push(&repositories.ServerMessage{FunctionCalls: []repositories.FunctionCall{call}})
		return nil
	}

	c.Push(&repositories.ServerMessage{OutputTranscription: fmt.Sprintf("You said: %s", text)})
	c.Push(&repositories.ServerMessage{TurnComplete: true})
	return nil
}

// SendToolResults implements repositories.LiveConnection
func (c *MockLiveConnection) SendToolResults(results []repositories.FunctionResult) error {
	if c.isClosed() {
		return repositories.ErrConnectionClosed
	}

	c.mu.Lock()
	c.toolResults = append(c.toolResults, results)
	hadPending := c.pending != ""
	c.pending = ""
	c.mu.Unlock()

	if !hadPending {
		return nil
	}

	summary := make([]string, 0, len(results))
	for _, r := range results {
		if msg, ok := r.Response["message"].(string); ok {
			summary = append(summary, msg)
		} else if errMsg, ok := r.Response["error"].(string); ok {
			summary = append(summary, "That did not work: "+errMsg)
		}
	}
	c.Push(&repositories.ServerMessage{OutputTranscription: strings.Join(summary, ". ")})
	c.Push(&repositories.ServerMessage{TurnComplete: true})
	return nil
}

// Close implements repositories.LiveConnection
func (c *MockLiveConnection) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// AudioFrames returns how many audio frames were sent
func (c *MockLiveConnection) AudioFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioFrames
}

// Texts returns every text turn sent
func (c *MockLiveConnection) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

// ToolResults returns every tool result batch sent
func (c *MockLiveConnection) ToolResults() [][]repositories.FunctionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]repositories.FunctionResult(nil), c.toolResults...)
}

func (c *MockLiveConnection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// parseCommand recognizes "add|create [a|an] <kind> [called|named <name>]"
func parseCommand(text string) (repositories.FunctionCall, bool) {
	words := strings.Fields(strings.TrimRight(strings.TrimSpace(text), ".!?"))
	if len(words) < 2 {
		return repositories.FunctionCall{}, false
	}

	verb := strings.ToLower(words[0])
	if verb != "add" && verb != "create" {
		return repositories.FunctionCall{}, false
	}

	rest := words[1:]
	if a := strings.ToLower(rest[0]); a == "a" || a == "an" {
		rest = rest[1:]
	}

	for i := range rest {
		if isNameLabel(rest[i]) {
			break
		}
		kindWords := strings.ToLower(strings.Join(rest[:i+1], ""))
		kind, err := diagram.ParseKind(kindWords)
		if err != nil {
			continue
		}

		args := map[string]any{"type": string(kind)}
		if name := nameAfterLabel(rest[i+1:]); name != "" {
			args["name"] = name
		}
		return repositories.FunctionCall{
			ID:   "mock-" + strings.ToLower(strings.Join(rest[:i+1], "-")),
			Name: tools.CreateElement,
			Args: args,
		}, true
	}
	return repositories.FunctionCall{}, false
}

func nameAfterLabel(words []string) string {
	for i, w := range words {
		if isNameLabel(w) {
			return strings.Join(words[i+1:], " ")
		}
	}
	return ""
}

func isNameLabel(word string) bool {
	return strings.EqualFold(word, "called") || strings.EqualFold(word, "named")
}
