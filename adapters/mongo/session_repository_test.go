package mongo

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/entities"
	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// TestRecordRepository_Integration requires a running MongoDB instance
// (skipped if MONGODB_URI is not set)
func TestRecordRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zap.NewNop()

	client, err := NewClient(ctx, Config{URI: mongoURI, Database: "bpmn_voice_test"}, logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	repo := NewRecordRepository(client.Database, logger)

	t.Run("MissingRecords", func(t *testing.T) {
		if _, err := repo.LoadSessions(ctx); !errors.Is(err, repositories.ErrRecordNotFound) {
			t.Errorf("Expected ErrRecordNotFound, got %v", err)
		}
		if _, err := repo.LoadActiveSessionID(ctx); !errors.Is(err, repositories.ErrRecordNotFound) {
			t.Errorf("Expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("SaveAndLoadSessions", func(t *testing.T) {
		session := entities.NewSession("Order flow", "<xml/>")
		session.AddMessage(entities.NewMessage(entities.MessageRoleUser, "add a task"))
		session.AddVersion("first")

		if err := repo.SaveSessions(ctx, []*entities.Session{session}); err != nil {
			t.Fatalf("Failed to save sessions: %v", err)
		}
		// second write replaces the first
		if err := repo.SaveSessions(ctx, []*entities.Session{session}); err != nil {
			t.Fatalf("Failed to save sessions: %v", err)
		}

		loaded, err := repo.LoadSessions(ctx)
		if err != nil {
			t.Fatalf("Failed to load sessions: %v", err)
		}
		if len(loaded) != 1 {
			t.Fatalf("Expected 1 session, got %d", len(loaded))
		}
		if loaded[0].ID != session.ID || loaded[0].Name != "Order flow" {
			t.Errorf("Unexpected session %+v", loaded[0])
		}
		if len(loaded[0].Messages) != 1 || len(loaded[0].Versions) != 1 {
			t.Errorf("Expected 1 message and 1 version, got %d and %d", len(loaded[0].Messages), len(loaded[0].Versions))
		}
	})

	t.Run("ActiveSessionAndAPIKey", func(t *testing.T) {
		if err := repo.SaveActiveSessionID(ctx, "abc"); err != nil {
			t.Fatalf("Failed to save active id: %v", err)
		}
		if id, err := repo.LoadActiveSessionID(ctx); err != nil || id != "abc" {
			t.Errorf("Expected abc, got %q (%v)", id, err)
		}

		if err := repo.SaveAPIKey(ctx, "secret"); err != nil {
			t.Fatalf("Failed to save api key: %v", err)
		}
		if key, err := repo.LoadAPIKey(ctx); err != nil || key != "secret" {
			t.Errorf("Expected secret, got %q (%v)", key, err)
		}
	})

	t.Run("RejectsInvalidSession", func(t *testing.T) {
		err := repo.SaveSessions(ctx, []*entities.Session{{ID: "x"}})
		if err == nil {
			t.Error("Expected error for session without a name")
		}
	})
}
