package storage

import (
	"context"
	"io"
)

// Archiver creates write streams for raw call audio. Archiving is optional
// and best-effort: a failed recording never affects the live call.
type Archiver interface {
	NewRecording(ctx context.Context, callID, userID string) (io.WriteCloser, error)
}
