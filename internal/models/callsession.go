package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CallSession is the durable record of one call room's lifetime. The relay
// itself keeps no state across restarts; these rows exist for history and
// billing, written best-effort when a room opens and closes.
type CallSession struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallID string             `bson:"call_id" json:"call_id"`

	Status string `bson:"status" json:"status"` // active|ended

	StartedAt time.Time  `bson:"started_at" json:"started_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	PeakParticipants int   `bson:"peak_participants" json:"peak_participants"`
	DurationSeconds  int64 `bson:"duration_seconds" json:"duration_seconds"`
}
