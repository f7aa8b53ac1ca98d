package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// GeminiLiveDialer implements repositories.LiveDialer using the Gemini Live API
type GeminiLiveDialer struct {
	config      GeminiConfig
	credentials repositories.CredentialRepository
	logger      *zap.Logger
}

// NewGeminiLiveDialer creates a new Gemini Live dialer. A key stored in
// credentials takes precedence over config.APIKey and is read on every dial,
// so a key updated at runtime is picked up by the next connection.
func NewGeminiLiveDialer(config GeminiConfig, credentials repositories.CredentialRepository, logger *zap.Logger) (*GeminiLiveDialer, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}
	return &GeminiLiveDialer{
		config:      config.withDefaults(),
		credentials: credentials,
		logger:      logger,
	}, nil
}

// Dial implements repositories.LiveDialer
func (g *GeminiLiveDialer) Dial(ctx context.Context) (repositories.LiveConnection, error) {
	apiKey := g.apiKey(ctx)
	if apiKey == "" {
		return nil, repositories.ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: g.config.APIVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	session, err := client.Live.Connect(ctx, g.config.Model, g.connectConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open live session: %w", err)
	}

	g.logger.Info("Gemini live session opened",
		zap.String("model", g.config.Model),
		zap.String("voice", g.config.Voice))

	return &geminiConnection{session: session, logger: g.logger}, nil
}

func (g *GeminiLiveDialer) apiKey(ctx context.Context) string {
	if g.credentials != nil {
		key, err := g.credentials.LoadAPIKey(ctx)
		switch {
		case err == nil && key != "":
			return key
		case err != nil && !errors.Is(err, repositories.ErrRecordNotFound):
			g.logger.Warn("Failed to load stored API key, falling back to environment", zap.Error(err))
		}
	}
	return g.config.APIKey
}

func (g *GeminiLiveDialer) connectConfig() *genai.LiveConnectConfig {
	return &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  genai.NewContentFromText(g.config.SystemInstruction, genai.RoleUser),
		Tools: []*genai.Tool{
			{FunctionDeclarations: FunctionDeclarations()},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.config.Voice},
			},
		},
		RealtimeInputConfig: &genai.RealtimeInputConfig{
			ActivityHandling: genai.ActivityHandlingStartOfActivityInterrupts,
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
}

// geminiConnection adapts *genai.Session to repositories.LiveConnection
type geminiConnection struct {
	session *genai.Session
	logger  *zap.Logger

	// genai sessions share one websocket; concurrent writers must be serialized
	sendMu sync.Mutex
}

// Receive implements repositories.LiveConnection
func (c *geminiConnection) Receive() (*repositories.ServerMessage, error) {
	msg, err := c.session.Receive()
	if err != nil {
		if isNormalClose(err) {
			return nil, repositories.ErrConnectionClosed
		}
		return nil, fmt.Errorf("failed to receive live message: %w", err)
	}
	return toServerMessage(msg), nil
}

// SendAudio implements repositories.LiveConnection
func (c *geminiConnection) SendAudio(frame repositories.AudioFrame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{
			Data:     frame.Data,
			MIMEType: audioMIMEType(frame.SampleRate),
		},
	})
}

// SendText implements repositories.LiveConnection
func (c *geminiConnection) SendText(text string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	return c.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
	})
}

// SendToolResults implements repositories.LiveConnection
func (c *geminiConnection) SendToolResults(results []repositories.FunctionResult) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	return c.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: toFunctionResponses(results),
	})
}

// Close implements repositories.LiveConnection
func (c *geminiConnection) Close() error {
	return c.session.Close()
}

func audioMIMEType(sampleRate int) string {
	if sampleRate <= 0 {
		sampleRate = repositories.CaptureSampleRate
	}
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// isNormalClose reports whether err means the remote side ended the session
// on purpose rather than failing.
func isNormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
