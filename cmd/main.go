package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satriahrh/bpmn-voice/adapters"
	"github.com/satriahrh/bpmn-voice/adapters/audiodev"
	"github.com/satriahrh/bpmn-voice/adapters/llm"
	"github.com/satriahrh/bpmn-voice/adapters/mongo"
	"github.com/satriahrh/bpmn-voice/domain/entities"
	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/api"
	"github.com/satriahrh/bpmn-voice/internal/audio"
	"github.com/satriahrh/bpmn-voice/internal/auth"
	"github.com/satriahrh/bpmn-voice/internal/config"
	"github.com/satriahrh/bpmn-voice/internal/metrics"
	"github.com/satriahrh/bpmn-voice/internal/tools"
	"github.com/satriahrh/bpmn-voice/internal/transcript"
	"github.com/satriahrh/bpmn-voice/internal/websocket"
	"github.com/satriahrh/bpmn-voice/usecase"
)

// store is what every persistence backend provides
type store interface {
	repositories.SessionRepository
	repositories.CredentialRepository
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Initialize logger
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Initialize adapters
	sessionStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open session store", zap.String("backend", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	dialer, err := newDialer(cfg, sessionStore, logger)
	if err != nil {
		logger.Fatal("Failed to configure live session", zap.Error(err))
	}

	// Initialize usecase services
	sessions := usecase.NewSessionService(ctx, sessionStore, logger, m)
	workspace := usecase.NewWorkspace(sessions, cfg.AutosaveQuiet, logger)
	dispatcher := tools.NewDispatcher(workspace, workspace, logger, m)

	playback := audio.NewScheduler(repositories.PlaybackSampleRate, logger, m)
	var (
		capture *audio.Capture
		speaker repositories.Speaker = audio.NullSpeaker{}
	)
	if !cfg.NoAudio {
		host := audiodev.NewHost(logger)
		capture = audio.NewCapture(host.Microphone(), audio.DefaultCaptureConfig(), logger, m)
		speaker = host.Speaker()
	}
	output, err := playback.Attach(speaker, audio.DefaultPlaybackBlockSize)
	if err != nil {
		logger.Warn("No audio output device, playing back silently", zap.Error(err))
		if output, err = playback.Attach(audio.NullSpeaker{}, audio.DefaultPlaybackBlockSize); err != nil {
			logger.Fatal("Failed to start playback clock", zap.Error(err))
		}
	}
	defer output.Close()

	var hub *websocket.Hub
	conversation := usecase.NewConversationService(usecase.ConversationConfig{
		Dialer:      dialer,
		Dispatcher:  dispatcher,
		Capture:     capture,
		Playback:    playback,
		ConnectWait: cfg.ConnectWait,
		Callbacks: usecase.ConversationCallbacks{
			OnUserMessage: func(text string) {
				recordMessage(workspace, entities.MessageRoleUser, text, logger)
				hub.BroadcastUserMessage(workspace.ActiveSessionID(), text)
			},
			OnAssistantMessage: func(text string) {
				recordMessage(workspace, entities.MessageRoleAssistant, text, logger)
				hub.BroadcastAssistantMessage(workspace.ActiveSessionID(), text)
			},
			OnStateChange: func(state usecase.ConnectionState) {
				hub.BroadcastState(state)
			},
			OnTurnComplete: func(turn transcript.Turn, mutated bool) {
				if mutated {
					snapshotTurn(workspace, turn, logger)
				}
			},
		},
	}, logger, m)

	// Initialize WebSocket hub with conversation service
	hub = websocket.NewHub(conversation, logger)
	workspace.SetListener(hub)
	go hub.Run(ctx)

	var issuer *auth.Issuer
	if cfg.AccessKey != "" {
		if issuer, err = auth.NewIssuer(cfg.JWTSecret, cfg.AccessKey, auth.DefaultTokenTTL); err != nil {
			logger.Fatal("Failed to configure authentication", zap.Error(err))
		}
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Workspace:   workspace,
		Voice:       conversation,
		Dispatcher:  dispatcher,
		Credentials: sessionStore,
		Hub:         hub,
		Issuer:      issuer,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.Store),
		zap.Bool("mockLive", cfg.MockLive),
		zap.Bool("audio", !cfg.NoAudio),
		zap.Bool("auth", issuer.Enabled()))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conversation.Disconnect()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	workspace.Close(shutdownCtx)

	logger.Info("Server exited")
}

func newLogger(level string) *zap.Logger {
	var zcfg zap.Config
	if level == "debug" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("Using in-memory session store, nothing survives a restart")
		return adapters.NewMemorySessionRepository(), func() {}, nil

	case config.StoreMongo:
		client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
		}
		return mongo.NewRecordRepository(client.Database, logger), closeFn, nil

	default:
		repo, err := adapters.NewFileSessionRepository(cfg.DataDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
}

func newDialer(cfg config.Config, credentials repositories.CredentialRepository, logger *zap.Logger) (repositories.LiveDialer, error) {
	if cfg.MockLive {
		logger.Info("Using scripted mock live session")
		return llm.NewMockLiveDialer(logger), nil
	}

	gemini := llm.DefaultGeminiConfig()
	gemini.APIKey = cfg.GeminiAPIKey
	if cfg.GeminiModel != "" {
		gemini.Model = cfg.GeminiModel
	}
	if cfg.GeminiVoice != "" {
		gemini.Voice = cfg.GeminiVoice
	}
	return llm.NewGeminiLiveDialer(gemini, credentials, logger)
}

func recordMessage(workspace *usecase.Workspace, role entities.MessageRole, text string, logger *zap.Logger) {
	if err := workspace.RecordMessage(context.Background(), role, text); err != nil {
		logger.Warn("Failed to record message", zap.String("role", string(role)), zap.Error(err))
	}
}

// snapshotTurn records a version after a turn that changed the diagram,
// labelled with what the user said
func snapshotTurn(workspace *usecase.Workspace, turn transcript.Turn, logger *zap.Logger) {
	label := []rune(turn.User)
	if len(label) > 60 {
		label = append(label[:57], []rune("...")...)
	}

	version, created, err := workspace.Snapshot(context.Background(), string(label))
	if err != nil {
		logger.Warn("Failed to snapshot turn", zap.Error(err))
		return
	}
	if created {
		logger.Debug("Turn snapshot created", zap.String("versionID", version.ID))
	}
}
