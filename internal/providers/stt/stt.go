package stt

import "context"

// Result is one transcript fragment recognized from a speaker's audio.
type Result struct {
	Text        string
	Confidence  float64
	IsFinal     bool
	SpeechFinal bool
	Language    string
}

// CloseEvent reports why the backend ended the stream.
type CloseEvent struct {
	Code   int
	Reason string
}

// LiveSession is one streaming recognition session bound to one speaker.
//
// SendAudio after Close is a silent drop, never an error. Close is
// idempotent and safe after the backend already hung up. Results carries
// only messages with a non-empty transcript; everything else the backend
// sends is ignored. Done fires at most once.
type LiveSession interface {
	SendAudio(p []byte) error
	Results() <-chan Result
	Errs() <-chan error
	Done() <-chan CloseEvent
	Close() error
}

// LiveProvider opens streaming recognition sessions.
type LiveProvider interface {
	// OpenStream connects to the backend with the given language hint.
	// Fails with utils.CodeUnavailable when the backend rejects the
	// connection (bad credentials, connection refused, timeout).
	OpenStream(ctx context.Context, languageCode string) (LiveSession, error)
	Close() error
}
