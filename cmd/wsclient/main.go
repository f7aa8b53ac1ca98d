package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/satriahrh/bpmn-voice/internal/api"
	ws "github.com/satriahrh/bpmn-voice/internal/websocket"
)

func main() {
	fs := pflag.NewFlagSet("wsclient", pflag.ExitOnError)
	server := fs.StringP("server", "s", "http://localhost:8080", "server base URL")
	clientID := fs.String("client-id", "wsclient", "client id used when requesting a token")
	accessKey := fs.StringP("access-key", "k", os.Getenv("ACCESS_KEY"), "access key, empty when the server runs without auth")
	say := fs.StringArray("say", nil, "text turn to send, may be repeated")
	wait := fs.DurationP("wait", "w", 10*time.Second, "how long to print events after the last turn")
	_ = fs.Parse(os.Args[1:])

	base, err := url.Parse(*server)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}

	// Step 1: Get authentication token
	token := ""
	if *accessKey != "" {
		token = requestToken(base, *clientID, *accessKey)
		fmt.Println("✓ Authentication successful")
	}

	// Step 2: Connect to WebSocket with token
	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = "/ws"
	if token != "" {
		q := wsURL.Query()
		q.Set("token", token)
		wsURL.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("WebSocket connection failed with status %d: %v", resp.StatusCode, err)
		}
		log.Fatalf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()
	fmt.Printf("✓ Connected to %s\n", wsURL.Redacted())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			printEvent(message)
		}
	}()

	// Step 3: Open the live session and send every turn
	send(conn, ws.ControlMessage{BaseMessage: envelope(ws.MessageTypeConnect)})
	for _, text := range *say {
		send(conn, ws.TextMessage{BaseMessage: envelope(ws.MessageTypeText), Text: text})
	}

	select {
	case <-done:
	case <-time.After(*wait):
		send(conn, ws.ControlMessage{BaseMessage: envelope(ws.MessageTypeDisconnect)})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

func requestToken(base *url.URL, clientID, accessKey string) string {
	reqBody, _ := json.Marshal(api.TokenRequest{ClientID: clientID, AccessKey: accessKey})

	resp, err := http.Post(base.JoinPath("/api/v1/auth/token").String(), "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatalf("Failed to authenticate: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Authentication failed with status: %d", resp.StatusCode)
	}

	var tokenResp api.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		log.Fatalf("Failed to decode token response: %v", err)
	}
	return tokenResp.Token
}

func envelope(t ws.MessageType) ws.BaseMessage {
	return ws.BaseMessage{Type: t, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func send(conn *websocket.Conn, msg interface{}) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}
}

func printEvent(raw []byte) {
	var base ws.BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		fmt.Printf("? %s\n", raw)
		return
	}

	switch base.Type {
	case ws.MessageTypeState:
		var msg ws.StateMessage
		_ = json.Unmarshal(raw, &msg)
		fmt.Printf("[state] %s listening=%t\n", msg.State, msg.Listening)
	case ws.MessageTypeUserMessage, ws.MessageTypeAssistantMessage:
		var msg ws.ChatMessage
		_ = json.Unmarshal(raw, &msg)
		who := strings.TrimSuffix(string(base.Type), "_message")
		fmt.Printf("[%s] %s\n", who, msg.Text)
	case ws.MessageTypeDiagramChanged, ws.MessageTypeSessionChanged:
		var msg ws.SessionEventMessage
		_ = json.Unmarshal(raw, &msg)
		fmt.Printf("[%s] %s\n", base.Type, msg.SessionID)
	case ws.MessageTypeError:
		var msg ws.ErrorMessage
		_ = json.Unmarshal(raw, &msg)
		fmt.Printf("[error] %s: %s\n", msg.Code, msg.Message)
	default:
		fmt.Printf("[%s] %s\n", base.Type, raw)
	}
}
