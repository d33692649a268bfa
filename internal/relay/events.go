// Package relay implements the live call-translation relay: room
// membership, per-connection orchestration, and fan-out of translated
// transcript events to call peers.
package relay

import (
	"context"
	"time"
)

// Close codes used on the participant socket.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008 // missing/invalid call id
	CloseInternalError   = 1011 // upstream transcription backend failure
)

// Outbound is the write side of one participant's connection. SendJSON
// after Close must fail without writing; Alive reports whether the last
// Ping was answered.
type Outbound interface {
	SendJSON(v any) error
	Ping() error
	Alive() bool
	Close(code int, reason string) error
}

// Participant is one authenticated user inside a call room.
type Participant struct {
	UserID         string
	DisplayName    string
	NativeLanguage string // raw profile value, ex: "brazilian portuguese"
	LanguageCode   string // base translation code derived from it, ex: "pt"
	Out            Outbound
}

// TranscriptEvent is one recognized utterance fragment from a speaker.
// Immutable once emitted; never persisted.
type TranscriptEvent struct {
	SpeakerID    string
	SpeakerName  string
	Text         string
	IsFinal      bool
	SpeechFinal  bool
	Confidence   float64
	LanguageCode string
	Timestamp    time.Time
}

// Wire messages, discriminated by "type".

type MetaMessage struct {
	Type                  string `json:"type"`
	CallID                string `json:"call_id"`
	UserID                string `json:"user_id"`
	TranscriptionLanguage string `json:"transcription_language"`
	TranslationLanguage   string `json:"translation_language"`
}

type PeerMessage struct {
	Type           string `json:"type"`
	Event          string `json:"event"` // joined|left|present
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	NativeLanguage string `json:"native_language"`
}

type TranscriptMessage struct {
	Type               string  `json:"type"`
	CallID             string  `json:"call_id"`
	SpeakerID          string  `json:"speaker_id"`
	SpeakerName        string  `json:"speaker_name"`
	OriginalText       string  `json:"original_text"`
	OriginalLanguage   string  `json:"original_language"`
	TranslatedText     *string `json:"translated_text"`
	TranslatedLanguage *string `json:"translated_language"`
	IsFinal            bool    `json:"is_final"`
	SpeechFinal        bool    `json:"speech_final"`
	Confidence         float64 `json:"confidence"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: "error", Message: msg}
}

func peerMessage(event string, p *Participant) PeerMessage {
	return PeerMessage{
		Type:           "peer",
		Event:          event,
		UserID:         p.UserID,
		DisplayName:    p.DisplayName,
		NativeLanguage: p.NativeLanguage,
	}
}

// CaptionRecord is the shape stored in caption history (final captions
// only, source language).
type CaptionRecord struct {
	SpeakerID   string    `json:"speaker_id"`
	SpeakerName string    `json:"speaker_name"`
	Text        string    `json:"text"`
	Language    string    `json:"language"`
	Timestamp   time.Time `json:"timestamp"`
}

// CaptionSink receives final captions for history. Implementations must be
// fast or internally bounded; failures are logged and never fatal.
type CaptionSink interface {
	Append(ctx context.Context, callID string, rec CaptionRecord) error
}

// Lifecycle observes room creation and destruction. Calls are made outside
// the registry lock and must not block for long.
type Lifecycle interface {
	RoomOpened(callID string)
	RoomClosed(callID string, peak int, openedAt time.Time)
}
