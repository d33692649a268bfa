package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/linguacall/linguacall/internal/models"
	"github.com/linguacall/linguacall/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type CallSessionRepository interface {
	Create(ctx context.Context, s *models.CallSession) error
	GetActiveByCallID(ctx context.Context, callID string) (*models.CallSession, error)
	End(ctx context.Context, callID string, endedAt time.Time, peak int, durationSeconds int64) error
}

type callSessionRepo struct {
	col *mongo.Collection
}

func NewCallSessionRepo(db *mongo.Database) CallSessionRepository {
	return &callSessionRepo{col: db.Collection("call_sessions")}
}

func (r *callSessionRepo) Create(ctx context.Context, s *models.CallSession) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *callSessionRepo) GetActiveByCallID(ctx context.Context, callID string) (*models.CallSession, error) {
	var s models.CallSession
	err := r.col.FindOne(ctx, bson.M{"call_id": callID, "status": "active"}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *callSessionRepo) End(ctx context.Context, callID string, endedAt time.Time, peak int, durationSeconds int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"call_id": callID, "status": "active"},
		bson.M{"$set": bson.M{
			"status":            "ended",
			"ended_at":          endedAt.UTC(),
			"peak_participants": peak,
			"duration_seconds":  durationSeconds,
		}},
	)
	return err
}
