package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// countingTranslator is a call-counting fake translation backend.
type countingTranslator struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *countingTranslator) Translate(_ context.Context, text, _, targetLang string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return "", errors.New("translation backend down")
	}
	return "[" + targetLang + "] " + text, nil
}

func (c *countingTranslator) Close() error { return nil }

func (c *countingTranslator) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestSession(t *testing.T, reg *Registry, tr *countingTranslator, speaker *Participant) *Session {
	t.Helper()
	return NewSession(Config{
		Registry:   reg,
		Translator: tr,
		Logger:     testLogger(),
	}, "call-1", speaker)
}

func finalEvent(speaker *Participant, text string) TranscriptEvent {
	return TranscriptEvent{
		SpeakerID:    speaker.UserID,
		SpeakerName:  speaker.DisplayName,
		Text:         text,
		IsFinal:      true,
		SpeechFinal:  true,
		Confidence:   0.97,
		LanguageCode: "en-US",
	}
}

func interimEvent(speaker *Participant, text string) TranscriptEvent {
	ev := finalEvent(speaker, text)
	ev.IsFinal = false
	ev.SpeechFinal = false
	return ev
}

func TestFanOutAloneProducesNothing(t *testing.T) {
	reg := NewRegistry(testLogger())
	speaker, speakerOut := newParticipant("a", "en")
	if err := reg.Join("call-1", speaker); err != nil {
		t.Fatal(err)
	}

	tr := &countingTranslator{}
	s := newTestSession(t, reg, tr, speaker)

	s.handleTranscript(finalEvent(speaker, "hello"))

	if got := len(speakerOut.transcripts()); got != 0 {
		t.Errorf("speaker received %d transcript events, want 0", got)
	}
	if tr.callCount() != 0 {
		t.Errorf("translator called %d times, want 0", tr.callCount())
	}
}

func TestFanOutTranslatesForDifferentLanguagePeer(t *testing.T) {
	reg := NewRegistry(testLogger())
	speaker, speakerOut := newParticipant("a", "en")
	peer, peerOut := newParticipant("b", "es")
	if err := reg.Join("call-1", speaker); err != nil {
		t.Fatal(err)
	}
	if err := reg.Join("call-1", peer); err != nil {
		t.Fatal(err)
	}

	tr := &countingTranslator{}
	s := newTestSession(t, reg, tr, speaker)

	s.handleTranscript(finalEvent(speaker, "hello"))

	got := peerOut.transcripts()
	if len(got) != 1 {
		t.Fatalf("peer received %d transcript events, want 1", len(got))
	}
	msg := got[0]
	if msg.OriginalText != "hello" {
		t.Errorf("original_text = %q", msg.OriginalText)
	}
	if msg.TranslatedText == nil || *msg.TranslatedText != "[es] hello" {
		t.Errorf("translated_text = %v, want \"[es] hello\"", msg.TranslatedText)
	}
	if msg.TranslatedLanguage == nil || *msg.TranslatedLanguage != "es" {
		t.Errorf("translated_language = %v, want es", msg.TranslatedLanguage)
	}
	if len(speakerOut.transcripts()) != 0 {
		t.Error("speaker must not receive its own transcript back")
	}
	if tr.callCount() != 1 {
		t.Errorf("translator called %d times, want 1", tr.callCount())
	}
}

func TestFanOutInterimSkipsTranslation(t *testing.T) {
	reg := NewRegistry(testLogger())
	speaker, _ := newParticipant("a", "en")
	peerB, outB := newParticipant("b", "es")
	peerC, outC := newParticipant("c", "es")
	for _, p := range []*Participant{speaker, peerB, peerC} {
		if err := reg.Join("call-1", p); err != nil {
			t.Fatal(err)
		}
	}

	tr := &countingTranslator{}
	s := newTestSession(t, reg, tr, speaker)

	s.handleTranscript(interimEvent(speaker, "he"))

	for name, out := range map[string]*fakeOutbound{"b": outB, "c": outC} {
		got := out.transcripts()
		if len(got) != 1 {
			t.Fatalf("peer %s received %d events, want 1", name, len(got))
		}
		if got[0].TranslatedText != nil {
			t.Errorf("peer %s interim translated_text = %v, want nil", name, got[0].TranslatedText)
		}
	}
	if tr.callCount() != 0 {
		t.Errorf("translator called %d times on interim, want 0", tr.callCount())
	}
}

func TestFanOutSameBaseLanguageSkipsTranslation(t *testing.T) {
	reg := NewRegistry(testLogger())
	speaker, _ := newParticipant("a", "en")
	peer, peerOut := newParticipant("b", "en")
	if err := reg.Join("call-1", speaker); err != nil {
		t.Fatal(err)
	}
	if err := reg.Join("call-1", peer); err != nil {
		t.Fatal(err)
	}

	tr := &countingTranslator{}
	s := newTestSession(t, reg, tr, speaker)

	s.handleTranscript(finalEvent(speaker, "hello"))

	got := peerOut.transcripts()
	if len(got) != 1 {
		t.Fatalf("peer received %d events, want 1", len(got))
	}
	if got[0].TranslatedText != nil {
		t.Errorf("translated_text = %v, want nil for same base language", got[0].TranslatedText)
	}
	if tr.callCount() != 0 {
		t.Errorf("translator called %d times, want 0", tr.callCount())
	}
}

func TestFanOutIsolatesPeerSendFailure(t *testing.T) {
	reg := NewRegistry(testLogger())
	speaker, _ := newParticipant("a", "en")
	peerB, outB := newParticipant("b", "es")
	peerC, outC := newParticipant("c", "es")
	for _, p := range []*Participant{speaker, peerB, peerC} {
		if err := reg.Join("call-1", p); err != nil {
			t.Fatal(err)
		}
	}
	outB.mu.Lock()
	outB.failSend = true
	outB.mu.Unlock()

	tr := &countingTranslator{}
	s := newTestSession(t, reg, tr, speaker)

	s.handleTranscript(finalEvent(speaker, "hello"))

	if got := outC.transcripts(); len(got) != 1 {
		t.Errorf("peer c received %d events despite b failing, want 1", len(got))
	}
}

func TestFanOutTranslationFailureDegradesToNull(t *testing.T) {
	reg := NewRegistry(testLogger())
	speaker, _ := newParticipant("a", "en")
	peer, peerOut := newParticipant("b", "es")
	if err := reg.Join("call-1", speaker); err != nil {
		t.Fatal(err)
	}
	if err := reg.Join("call-1", peer); err != nil {
		t.Fatal(err)
	}

	tr := &countingTranslator{fail: true}
	s := newTestSession(t, reg, tr, speaker)

	s.handleTranscript(finalEvent(speaker, "hello"))

	got := peerOut.transcripts()
	if len(got) != 1 {
		t.Fatalf("peer received %d events, want 1 despite translation failure", len(got))
	}
	if got[0].TranslatedText != nil {
		t.Errorf("translated_text = %v, want nil on failure", got[0].TranslatedText)
	}
	if got[0].OriginalText != "hello" {
		t.Errorf("original_text = %q", got[0].OriginalText)
	}
}

func TestShutdownDiscardsLateDeliveries(t *testing.T) {
	reg := NewRegistry(testLogger())
	speaker, _ := newParticipant("a", "en")
	peer, peerOut := newParticipant("b", "es")
	if err := reg.Join("call-1", speaker); err != nil {
		t.Fatal(err)
	}
	if err := reg.Join("call-1", peer); err != nil {
		t.Fatal(err)
	}

	tr := &countingTranslator{}
	s := newTestSession(t, reg, tr, speaker)
	s.cancel() // session context gone: in-flight results must be dropped

	s.handleTranscript(finalEvent(speaker, "hello"))

	if got := len(peerOut.transcripts()); got != 0 {
		t.Errorf("peer received %d events after shutdown, want 0", got)
	}
}

type recordingSink struct {
	mu   sync.Mutex
	recs []CaptionRecord
}

func (r *recordingSink) Append(_ context.Context, _ string, rec CaptionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func TestFinalCaptionGoesToHistory(t *testing.T) {
	reg := NewRegistry(testLogger())
	speaker, _ := newParticipant("a", "en")
	if err := reg.Join("call-1", speaker); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	s := NewSession(Config{
		Registry:   reg,
		Translator: &countingTranslator{},
		Captions:   sink,
		Logger:     testLogger(),
	}, "call-1", speaker)

	s.handleTranscript(interimEvent(speaker, "hel"))
	s.handleTranscript(finalEvent(speaker, "hello"))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.recs) != 1 {
		t.Fatalf("history has %d records, want 1 (finals only)", len(sink.recs))
	}
	if sink.recs[0].Text != "hello" {
		t.Errorf("history text = %q", sink.recs[0].Text)
	}
}
