package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linguacall/linguacall/internal/language"
	"github.com/linguacall/linguacall/internal/providers/stt"
	"github.com/linguacall/linguacall/internal/providers/translate"
)

// State of one relay session. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateStreaming
	StateClosing
	StateClosed
)

const defaultTranslateTimeout = 10 * time.Second

// Config carries the collaborators a Session needs. Captions and Archive
// are optional.
type Config struct {
	Registry         *Registry
	STT              stt.LiveProvider
	Translator       translate.Translator
	Captions         CaptionSink
	Archive          io.WriteCloser
	Logger           *logrus.Logger
	TranslateTimeout time.Duration
}

// Session orchestrates one participant's connection: room membership,
// audio forwarding into the transcription session, and fan-out of
// translated captions to peers. One Session per socket.
type Session struct {
	cfg    Config
	callID string
	self   *Participant

	live stt.LiveSession

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	archive   io.WriteCloser
	closeOnce sync.Once

	log *logrus.Entry
}

func NewSession(cfg Config, callID string, self *Participant) *Session {
	if cfg.TranslateTimeout <= 0 {
		cfg.TranslateTimeout = defaultTranslateTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:     cfg,
		callID:  callID,
		self:    self,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateConnecting,
		archive: cfg.Archive,
		log: cfg.Logger.WithFields(logrus.Fields{
			"call_id": callID,
			"user_id": self.UserID,
		}),
	}
}

// Start joins the room, announces the resolved languages to the client and
// opens the transcription session. On a transcription-backend failure the
// client gets a structured error event and the room join is rolled back;
// the caller closes the socket with CloseInternalError.
func (s *Session) Start(ctx context.Context) error {
	s.setState(StateAuthenticated)

	if err := s.cfg.Registry.Join(s.callID, s.self); err != nil {
		return err
	}

	sttLang := language.TranscriptionCode(s.self.NativeLanguage)
	_ = s.self.Out.SendJSON(MetaMessage{
		Type:                  "meta",
		CallID:                s.callID,
		UserID:                s.self.UserID,
		TranscriptionLanguage: sttLang,
		TranslationLanguage:   s.self.LanguageCode,
	})

	live, err := s.cfg.STT.OpenStream(ctx, sttLang)
	if err != nil {
		_ = s.self.Out.SendJSON(NewErrorMessage("transcription unavailable"))
		s.cfg.Registry.Leave(s.callID, s.self.UserID)
		return err
	}
	s.live = live
	s.setState(StateJoined)

	go s.pump()
	return nil
}

// PushAudio forwards one binary frame to the transcription session.
// Ignored unless the session is joined or already streaming.
func (s *Session) PushAudio(p []byte) {
	st := s.getState()
	if st != StateJoined && st != StateStreaming {
		return
	}
	if st == StateJoined {
		s.setState(StateStreaming)
	}

	s.mu.Lock()
	arch := s.archive
	s.mu.Unlock()
	if arch != nil {
		if _, err := arch.Write(p); err != nil {
			s.log.WithError(err).Warn("audio archive write failed, disabling archive")
			s.mu.Lock()
			s.archive = nil
			s.mu.Unlock()
		}
	}

	if err := s.live.SendAudio(p); err != nil {
		s.log.WithError(err).Warn("audio forward failed")
	}
}

// Control handles one inbound text frame. Unknown types and parse failures
// are ignored, not errored.
func (s *Session) Control(data []byte) {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "request_peers":
		for _, p := range s.cfg.Registry.Peers(s.callID, s.self.UserID) {
			if err := s.self.Out.SendJSON(peerMessage("present", p)); err != nil {
				return
			}
		}
	}
}

// Shutdown tears the session down: cancels in-flight translations, closes
// the transcription session, leaves the room and closes the socket.
// Idempotent; safe from any goroutine.
func (s *Session) Shutdown(code int, reason string) {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		s.cancel()
		if s.live != nil {
			_ = s.live.Close()
		}
		s.cfg.Registry.Leave(s.callID, s.self.UserID)

		s.mu.Lock()
		arch := s.archive
		s.archive = nil
		s.mu.Unlock()
		if arch != nil {
			_ = arch.Close()
		}

		_ = s.self.Out.Close(code, reason)
		s.setState(StateClosed)
		s.log.WithField("reason", reason).Info("session closed")
	})
}

// pump consumes the transcription session's channels. Results are handled
// one at a time so a single speaker's events reach peers in backend order.
func (s *Session) pump() {
	for {
		select {
		case <-s.ctx.Done():
			return

		case r, ok := <-s.live.Results():
			if !ok {
				return
			}
			s.handleTranscript(TranscriptEvent{
				SpeakerID:    s.self.UserID,
				SpeakerName:  s.self.DisplayName,
				Text:         r.Text,
				IsFinal:      r.IsFinal,
				SpeechFinal:  r.SpeechFinal,
				Confidence:   r.Confidence,
				LanguageCode: r.Language,
				Timestamp:    time.Now().UTC(),
			})

		case err := <-s.live.Errs():
			// backend may recover; notify, do not close
			s.log.WithError(err).Warn("transcription backend error")
			_ = s.self.Out.SendJSON(NewErrorMessage("transcription error: " + err.Error()))

		case ev := <-s.live.Done():
			s.log.WithFields(logrus.Fields{
				"code":   ev.Code,
				"reason": ev.Reason,
			}).Warn("transcription backend closed stream")
			_ = s.self.Out.SendJSON(NewErrorMessage(
				fmt.Sprintf("transcription stream closed (%d): %s", ev.Code, ev.Reason)))
			s.Shutdown(CloseInternalError, "upstream closed: "+ev.Reason)
			return
		}
	}
}

// handleTranscript fans one event out to every peer in the room. Peers in
// another language get a translation when the event is final or
// speech-final; interim fragments are relayed untranslated to keep latency
// low. Translation runs concurrently across peers, but the event is fully
// delivered before the next one is processed, so per-peer order holds.
func (s *Session) handleTranscript(ev TranscriptEvent) {
	peers := s.cfg.Registry.Peers(s.callID, s.self.UserID)
	if len(peers) == 0 {
		s.appendCaption(ev)
		return
	}

	speakerBase := language.Base(ev.LanguageCode)
	wantTranslation := ev.IsFinal || ev.SpeechFinal

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer *Participant) {
			defer wg.Done()
			s.deliver(ev, peer, speakerBase, wantTranslation)
		}(peer)
	}
	wg.Wait()

	s.appendCaption(ev)
}

func (s *Session) deliver(ev TranscriptEvent, peer *Participant, speakerBase string, wantTranslation bool) {
	msg := TranscriptMessage{
		Type:             "transcript",
		CallID:           s.callID,
		SpeakerID:        ev.SpeakerID,
		SpeakerName:      ev.SpeakerName,
		OriginalText:     ev.Text,
		OriginalLanguage: ev.LanguageCode,
		IsFinal:          ev.IsFinal,
		SpeechFinal:      ev.SpeechFinal,
		Confidence:       ev.Confidence,
	}

	peerBase := language.Base(peer.LanguageCode)
	if wantTranslation && peerBase != speakerBase {
		tctx, cancel := context.WithTimeout(s.ctx, s.cfg.TranslateTimeout)
		translated, err := s.cfg.Translator.Translate(tctx, ev.Text, speakerBase, peerBase)
		cancel()
		if err != nil {
			// degrade to original text only; never fatal
			s.log.WithError(err).WithField("peer", peer.UserID).Warn("translation failed")
		} else {
			msg.TranslatedText = &translated
			msg.TranslatedLanguage = &peerBase
		}
	}

	select {
	case <-s.ctx.Done():
		return // session closed while translating; discard
	default:
	}

	if err := peer.Out.SendJSON(msg); err != nil {
		// isolated to this peer; heartbeat sweep evicts dead connections
		s.log.WithError(err).WithField("peer", peer.UserID).Warn("peer send failed")
	}
}

func (s *Session) appendCaption(ev TranscriptEvent) {
	if s.cfg.Captions == nil || !ev.IsFinal {
		return
	}
	cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.cfg.Captions.Append(cctx, s.callID, CaptionRecord{
		SpeakerID:   ev.SpeakerID,
		SpeakerName: ev.SpeakerName,
		Text:        ev.Text,
		Language:    ev.LanguageCode,
		Timestamp:   ev.Timestamp,
	})
	if err != nil {
		s.log.WithError(err).Warn("caption history append failed")
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
