package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/audio"
	"github.com/satriahrh/bpmn-voice/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Upper bound for control requests that may wait for a connect.
	controlTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Controller is the voice session surface UI clients drive
type Controller interface {
	Connect()
	Disconnect()
	StartListening(ctx context.Context) bool
	StopListening()
	SendText(ctx context.Context, text string) bool
	SendAudioFrame(frame repositories.AudioFrame) bool
	State() usecase.ConnectionState
	Listening() bool
}

// Hub maintains the set of UI clients, broadcasts conversation events to
// them and forwards their control messages to the controller.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run has returned.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	controller Controller
	validator  *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(controller Controller, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		controller: controller,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, after closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.id))
			h.sendTo(client, CreateStateMessage(string(h.controller.State()), h.controller.Listening()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// ClientCount returns the number of connected UI clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastState announces a connection state change
func (h *Hub) BroadcastState(state usecase.ConnectionState) {
	h.Broadcast(CreateStateMessage(string(state), h.controller.Listening()))
}

// BroadcastUserMessage announces a finalized user message
func (h *Hub) BroadcastUserMessage(sessionID, text string) {
	h.Broadcast(CreateChatMessage(MessageTypeUserMessage, sessionID, text))
}

// BroadcastAssistantMessage announces a finalized assistant message
func (h *Hub) BroadcastAssistantMessage(sessionID, text string) {
	h.Broadcast(CreateChatMessage(MessageTypeAssistantMessage, sessionID, text))
}

// DiagramChanged implements usecase.WorkspaceListener
func (h *Hub) DiagramChanged(sessionID string) {
	h.Broadcast(CreateSessionEventMessage(MessageTypeDiagramChanged, sessionID))
}

// SessionChanged implements usecase.WorkspaceListener
func (h *Hub) SessionChanged(sessionID string) {
	h.Broadcast(CreateSessionEventMessage(MessageTypeSessionChanged, sessionID))
}

// Broadcast sends an event to every client. Clients whose buffer is full
// miss the event.
func (h *Hub) Broadcast(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
	}
}

// sendTo sends an event to one client if it is still registered
func (h *Hub) sendTo(client *Client, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[client.id] != client {
		return
	}
	client.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id string

	logger *zap.Logger

	chunkCount int
}

// HandleWebSocket handles websocket requests from the peer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, 256),
		id:     uuid.NewString(),
		logger: logger,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// enqueue must be called with the hub lock held
func (c *Client) enqueue(data WriteData) {
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full, dropping message", zap.String("clientID", c.id))
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage validates a control message and forwards it to the controller
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected client message", zap.String("clientID", c.id), zap.Error(err))
		c.hub.sendTo(c, CreateErrorMessage("INVALID_MESSAGE", "invalid message", err.Error()))
		return
	}

	controller := c.hub.controller
	switch m := msg.(type) {
	case *ControlMessage:
		c.handleControl(m.Type)

	case *TextMessage:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
			defer cancel()
			if !controller.SendText(ctx, m.Text) {
				c.hub.sendTo(c, CreateErrorMessage("SEND_FAILED", "message could not be sent", "no live session"))
			}
		}()

	case *AudioChunkMessage:
		frame, err := audio.DecodeBase64(m.AudioData, m.SampleRate)
		if err != nil {
			c.hub.sendTo(c, CreateErrorMessage("INVALID_AUDIO", "audio_data is not valid base64", err.Error()))
			return
		}
		c.forwardAudio(frame)

	case *PingMessage:
		c.hub.sendTo(c, CreatePongMessage(m.Data))
	}
}

func (c *Client) handleControl(t MessageType) {
	controller := c.hub.controller

	switch t {
	case MessageTypeConnect:
		controller.Connect()

	case MessageTypeDisconnect:
		controller.Disconnect()

	case MessageTypeListeningStart:
		c.chunkCount = 0
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
			defer cancel()
			if !controller.StartListening(ctx) {
				c.hub.sendTo(c, CreateErrorMessage("LISTEN_FAILED", "could not start listening", "no live session"))
				return
			}
			c.hub.BroadcastState(controller.State())
		}()

	case MessageTypeListeningEnd:
		controller.StopListening()
		c.hub.BroadcastState(controller.State())
		c.logger.Info("Listening ended by client",
			zap.String("clientID", c.id),
			zap.Int("totalChunks", c.chunkCount))
	}
}

// processBinaryAudioChunk handles raw 16 kHz PCM frames
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.forwardAudio(repositories.AudioFrame{
		Data:       data,
		SampleRate: repositories.CaptureSampleRate,
	})
}

func (c *Client) forwardAudio(frame repositories.AudioFrame) {
	if !c.hub.controller.SendAudioFrame(frame) {
		c.logger.Debug("Dropped audio chunk, not listening", zap.String("clientID", c.id))
		return
	}
	c.chunkCount++
}
