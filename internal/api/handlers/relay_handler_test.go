package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/linguacall/linguacall/internal/models"
	"github.com/linguacall/linguacall/internal/providers/stt"
	"github.com/linguacall/linguacall/internal/relay"
	"github.com/linguacall/linguacall/internal/utils"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func signTestToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type fakeProfiles struct {
	byUser map[string]*models.Profile
}

func (f *fakeProfiles) GetMe(_ context.Context, userID string) (*models.Profile, error) {
	if p, ok := f.byUser[userID]; ok {
		return p, nil
	}
	return nil, utils.E(utils.CodeNotFound, "fakeProfiles.GetMe", "profile not found", nil)
}

func (f *fakeProfiles) Upsert(_ context.Context, _ *models.Profile) error { return nil }

// echoSTT emits one final transcript per audio frame, echoing a fixed text
// in the language the stream was opened with.
type echoSTT struct {
	text string
}

func (p *echoSTT) OpenStream(_ context.Context, languageCode string) (stt.LiveSession, error) {
	return &echoStream{
		text:    p.text,
		lang:    languageCode,
		results: make(chan stt.Result, 8),
		errs:    make(chan error, 1),
		done:    make(chan stt.CloseEvent, 1),
	}, nil
}

func (p *echoSTT) Close() error { return nil }

type echoStream struct {
	text string
	lang string

	results chan stt.Result
	errs    chan error
	done    chan stt.CloseEvent

	closeOnce sync.Once
}

func (s *echoStream) SendAudio(_ []byte) error {
	s.results <- stt.Result{
		Text:        s.text,
		Confidence:  0.9,
		IsFinal:     true,
		SpeechFinal: true,
		Language:    s.lang,
	}
	return nil
}

func (s *echoStream) Results() <-chan stt.Result  { return s.results }
func (s *echoStream) Errs() <-chan error          { return s.errs }
func (s *echoStream) Done() <-chan stt.CloseEvent { return s.done }

func (s *echoStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

type prefixTranslator struct{}

func (prefixTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	return "[" + target + "] " + text, nil
}

func (prefixTranslator) Close() error { return nil }

func newRelayServer(t *testing.T, registry *relay.Registry) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	profiles := &fakeProfiles{byUser: map[string]*models.Profile{
		"alice": {UserID: "alice", DisplayName: "Alice", NativeLanguage: "english"},
		"bob":   {UserID: "bob", DisplayName: "Bob", NativeLanguage: "spanish"},
	}}

	h := NewRelayHandler(RelayDeps{
		Registry:   registry,
		STT:        &echoSTT{text: "hello there"},
		Translator: prefixTranslator{},
		Profiles:   profiles,
		Logger:     discardLogger(),
	})

	r := gin.New()
	r.GET("/ws/call", h.CallWS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/call?" + query
}

// wireMessage is a superset of all server frame shapes, keyed by "type".
type wireMessage struct {
	Type           string  `json:"type"`
	Event          string  `json:"event"`
	UserID         string  `json:"user_id"`
	DisplayName    string  `json:"display_name"`
	SpeakerID      string  `json:"speaker_id"`
	OriginalText   string  `json:"original_text"`
	TranslatedText *string `json:"translated_text"`
	IsFinal        bool    `json:"is_final"`
	Message        string  `json:"message"`
}

func readWire(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return msg
}

func TestCallWSInvalidTokenRejectedBeforeUpgrade(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	registry := relay.NewRegistry(discardLogger())
	srv := newRelayServer(t, registry)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "token=garbage&call_id=room-1"), nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake to fail for invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
	if registry.HasRoom("room-1") {
		t.Fatal("rejected connection must not create a room")
	}
}

func TestCallWSMissingCallIDClosesPolicyViolation(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	registry := relay.NewRegistry(discardLogger())
	srv := newRelayServer(t, registry)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+signTestToken(t, "alice")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, relay.ClosePolicyViolation) {
		t.Fatalf("expected close %d, got %v", relay.ClosePolicyViolation, err)
	}
}

func TestCallWSRelaysTranslatedTranscript(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	registry := relay.NewRegistry(discardLogger())
	srv := newRelayServer(t, registry)

	alice, _, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "token="+signTestToken(t, "alice")+"&call_id=room-9"), nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close()

	if msg := readWire(t, alice); msg.Type != "meta" {
		t.Fatalf("alice first frame = %q, want meta", msg.Type)
	}

	bob, _, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "token="+signTestToken(t, "bob")+"&call_id=room-9"), nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close()

	// alice learns that bob joined; bob gets alice's presence, then meta
	if msg := readWire(t, alice); msg.Type != "peer" || msg.Event != "joined" || msg.UserID != "bob" {
		t.Fatalf("alice expected bob joined, got %+v", msg)
	}
	if msg := readWire(t, bob); msg.Type != "peer" || msg.Event != "present" || msg.UserID != "alice" {
		t.Fatalf("bob expected alice present, got %+v", msg)
	}
	if msg := readWire(t, bob); msg.Type != "meta" {
		t.Fatalf("bob expected meta after roster, got %q", msg.Type)
	}

	// alice speaks: one audio frame produces one final transcript, which
	// bob receives translated into his language
	if err := alice.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	msg := readWire(t, bob)
	if msg.Type != "transcript" {
		t.Fatalf("bob expected transcript, got %+v", msg)
	}
	if msg.SpeakerID != "alice" || !msg.IsFinal {
		t.Fatalf("unexpected transcript attribution: %+v", msg)
	}
	if msg.OriginalText != "hello there" {
		t.Fatalf("original_text = %q", msg.OriginalText)
	}
	if msg.TranslatedText == nil || *msg.TranslatedText != "[es] hello there" {
		t.Fatalf("translated_text = %v, want [es] hello there", msg.TranslatedText)
	}

	// bob hangs up; alice is told he left and the room survives for her
	bob.Close()
	if msg := readWire(t, alice); msg.Type != "peer" || msg.Event != "left" || msg.UserID != "bob" {
		t.Fatalf("alice expected bob left, got %+v", msg)
	}
	if !registry.HasRoom("room-9") {
		t.Fatal("room should still exist while alice is connected")
	}
}

func TestCallWSRequestPeersReplaysRoster(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	registry := relay.NewRegistry(discardLogger())
	srv := newRelayServer(t, registry)

	alice, _, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "token="+signTestToken(t, "alice")+"&call_id=room-2"), nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close()
	readWire(t, alice) // meta

	bob, _, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "token="+signTestToken(t, "bob")+"&call_id=room-2"), nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close()
	readWire(t, bob)   // alice present
	readWire(t, bob)   // meta
	readWire(t, alice) // bob joined

	if err := bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"request_peers"}`)); err != nil {
		t.Fatalf("send control: %v", err)
	}
	if msg := readWire(t, bob); msg.Type != "peer" || msg.Event != "present" || msg.UserID != "alice" {
		t.Fatalf("roster replay = %+v, want alice present", msg)
	}
}
