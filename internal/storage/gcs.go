package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
)

type GCSArchiver struct {
	client *gcs.Client
	bucket string
}

func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSArchiver{client: c, bucket: bucket}, nil
}

func (a *GCSArchiver) Close() error { return a.client.Close() }

// NewRecording opens a streaming writer for one speaker's raw audio.
// Linear16 at the relay's sample rate; the object is finalized on Close.
func (a *GCSArchiver) NewRecording(ctx context.Context, callID, userID string) (io.WriteCloser, error) {
	name := fmt.Sprintf("calls/%s/%s-%d.raw", callID, userID, time.Now().UTC().Unix())
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "audio/L16; rate=16000"
	return w, nil
}

var _ Archiver = (*GCSArchiver)(nil)
