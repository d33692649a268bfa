package relay

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linguacall/linguacall/internal/utils"
)

// fakeOutbound records everything pushed to one participant's connection.
type fakeOutbound struct {
	mu       sync.Mutex
	sent     []any
	failSend bool
	dead     bool
	pings    int
	closed   bool
}

func (f *fakeOutbound) SendJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend || f.closed {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeOutbound) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeOutbound) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead
}

func (f *fakeOutbound) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeOutbound) peerEvents(event string) []PeerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PeerMessage
	for _, v := range f.sent {
		if m, ok := v.(PeerMessage); ok && m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeOutbound) transcripts() []TranscriptMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []TranscriptMessage
	for _, v := range f.sent {
		if m, ok := v.(TranscriptMessage); ok {
			out = append(out, m)
		}
	}
	return out
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newParticipant(userID, lang string) (*Participant, *fakeOutbound) {
	out := &fakeOutbound{}
	return &Participant{
		UserID:         userID,
		DisplayName:    "user " + userID,
		NativeLanguage: lang,
		LanguageCode:   lang, // tests pass base codes directly
		Out:            out,
	}, out
}

func TestJoinLeaveLifecycleCount(t *testing.T) {
	reg := NewRegistry(testLogger())

	a, _ := newParticipant("a", "en")
	b, _ := newParticipant("b", "es")

	if err := reg.Join("call-1", a); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := reg.Join("call-1", b); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if got := reg.ParticipantCount("call-1"); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	reg.Leave("call-1", "a")
	if got := reg.ParticipantCount("call-1"); got != 1 {
		t.Fatalf("count after one leave = %d, want 1", got)
	}

	reg.Leave("call-1", "b")
	if reg.HasRoom("call-1") {
		t.Fatal("room should be deleted after last leave")
	}
}

func TestLeaveUnknownUserIsNoop(t *testing.T) {
	reg := NewRegistry(testLogger())
	a, _ := newParticipant("a", "en")
	if err := reg.Join("call-1", a); err != nil {
		t.Fatal(err)
	}

	reg.Leave("call-1", "ghost")
	reg.Leave("no-such-call", "a")

	if got := reg.ParticipantCount("call-1"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestJoinEmptyCallIDFails(t *testing.T) {
	reg := NewRegistry(testLogger())
	a, _ := newParticipant("a", "en")

	err := reg.Join("   ", a)
	if err == nil {
		t.Fatal("expected error for blank call id")
	}
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("error code = %v, want INVALID_ARGUMENT", err)
	}
	if reg.HasRoom("") || reg.HasRoom("   ") {
		t.Error("no room should be created")
	}
}

func TestPeersInsertionOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		p, _ := newParticipant(id, "en")
		if err := reg.Join("call-1", p); err != nil {
			t.Fatal(err)
		}
	}

	peers := reg.Peers("call-1", "b")
	want := []string{"a", "c", "d"}
	if len(peers) != len(want) {
		t.Fatalf("got %d peers, want %d", len(peers), len(want))
	}
	for i, p := range peers {
		if p.UserID != want[i] {
			t.Errorf("peers[%d] = %s, want %s", i, p.UserID, want[i])
		}
	}
}

func TestJoinIntroductionsBothDirections(t *testing.T) {
	reg := NewRegistry(testLogger())

	a, aOut := newParticipant("a", "en")
	b, bOut := newParticipant("b", "es")

	if err := reg.Join("call-1", a); err != nil {
		t.Fatal(err)
	}
	if err := reg.Join("call-1", b); err != nil {
		t.Fatal(err)
	}

	joined := aOut.peerEvents("joined")
	if len(joined) != 1 || joined[0].UserID != "b" {
		t.Errorf("a should see b join, got %+v", joined)
	}

	present := bOut.peerEvents("present")
	if len(present) != 1 || present[0].UserID != "a" {
		t.Errorf("b should see a present, got %+v", present)
	}
}

func TestLeaveBroadcast(t *testing.T) {
	reg := NewRegistry(testLogger())

	a, aOut := newParticipant("a", "en")
	b, _ := newParticipant("b", "es")
	if err := reg.Join("call-1", a); err != nil {
		t.Fatal(err)
	}
	if err := reg.Join("call-1", b); err != nil {
		t.Fatal(err)
	}

	reg.Leave("call-1", "b")

	left := aOut.peerEvents("left")
	if len(left) != 1 || left[0].UserID != "b" {
		t.Errorf("a should see b leave, got %+v", left)
	}
}

type recordingLifecycle struct {
	mu     sync.Mutex
	opened []string
	closed []string
	peaks  []int
}

func (l *recordingLifecycle) RoomOpened(callID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, callID)
}

func (l *recordingLifecycle) RoomClosed(callID string, peak int, _ time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = append(l.closed, callID)
	l.peaks = append(l.peaks, peak)
}

func TestLifecycleHooks(t *testing.T) {
	reg := NewRegistry(testLogger())
	lc := &recordingLifecycle{}
	reg.SetLifecycle(lc)

	a, _ := newParticipant("a", "en")
	b, _ := newParticipant("b", "es")
	if err := reg.Join("call-1", a); err != nil {
		t.Fatal(err)
	}
	if err := reg.Join("call-1", b); err != nil {
		t.Fatal(err)
	}
	reg.Leave("call-1", "a")
	reg.Leave("call-1", "b")

	if len(lc.opened) != 1 || lc.opened[0] != "call-1" {
		t.Errorf("opened = %v", lc.opened)
	}
	if len(lc.closed) != 1 || lc.closed[0] != "call-1" {
		t.Errorf("closed = %v", lc.closed)
	}
	if len(lc.peaks) != 1 || lc.peaks[0] != 2 {
		t.Errorf("peaks = %v, want [2]", lc.peaks)
	}
}
