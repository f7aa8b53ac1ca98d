package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/entities"
	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

const recordsCollection = "records"

type sessionsRecord struct {
	Key       string              `bson:"_id"`
	Sessions  []*entities.Session `bson:"value"`
	UpdatedAt time.Time           `bson:"updated_at"`
}

type stringRecord struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// RecordRepository stores the session set, the active session id and the
// API key as keyed documents in a single collection.
type RecordRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var (
	_ repositories.SessionRepository    = (*RecordRepository)(nil)
	_ repositories.CredentialRepository = (*RecordRepository)(nil)
)

// NewRecordRepository creates a new MongoDB record repository
func NewRecordRepository(db *mongo.Database, logger *zap.Logger) *RecordRepository {
	return &RecordRepository{
		collection: db.Collection(recordsCollection),
		logger:     logger,
	}
}

// LoadSessions implements repositories.SessionRepository
func (r *RecordRepository) LoadSessions(ctx context.Context) ([]*entities.Session, error) {
	var record sessionsRecord
	if err := r.find(ctx, repositories.SessionsKey, &record); err != nil {
		return nil, err
	}
	return record.Sessions, nil
}

// SaveSessions implements repositories.SessionRepository
func (r *RecordRepository) SaveSessions(ctx context.Context, sessions []*entities.Session) error {
	for _, s := range sessions {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("failed to save sessions: %w", err)
		}
	}
	return r.replace(ctx, repositories.SessionsKey, sessionsRecord{
		Key:       repositories.SessionsKey,
		Sessions:  sessions,
		UpdatedAt: time.Now(),
	})
}

// LoadActiveSessionID implements repositories.SessionRepository
func (r *RecordRepository) LoadActiveSessionID(ctx context.Context) (string, error) {
	return r.loadString(ctx, repositories.ActiveSessionKey)
}

// SaveActiveSessionID implements repositories.SessionRepository
func (r *RecordRepository) SaveActiveSessionID(ctx context.Context, id string) error {
	return r.saveString(ctx, repositories.ActiveSessionKey, id)
}

// LoadAPIKey implements repositories.CredentialRepository
func (r *RecordRepository) LoadAPIKey(ctx context.Context) (string, error) {
	return r.loadString(ctx, repositories.APIKeyKey)
}

// SaveAPIKey implements repositories.CredentialRepository
func (r *RecordRepository) SaveAPIKey(ctx context.Context, key string) error {
	return r.saveString(ctx, repositories.APIKeyKey, key)
}

func (r *RecordRepository) loadString(ctx context.Context, key string) (string, error) {
	var record stringRecord
	if err := r.find(ctx, key, &record); err != nil {
		return "", err
	}
	return record.Value, nil
}

func (r *RecordRepository) saveString(ctx context.Context, key, value string) error {
	return r.replace(ctx, key, stringRecord{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	})
}

func (r *RecordRepository) find(ctx context.Context, key string, out interface{}) error {
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return repositories.ErrRecordNotFound
		}
		return fmt.Errorf("failed to load record %s: %w", key, err)
	}
	return nil
}

func (r *RecordRepository) replace(ctx context.Context, key string, doc interface{}) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to write record", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}
	return nil
}
