package handlers

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/linguacall/linguacall/internal/api/middleware"
	"github.com/linguacall/linguacall/internal/language"
	"github.com/linguacall/linguacall/internal/providers/stt"
	"github.com/linguacall/linguacall/internal/providers/translate"
	"github.com/linguacall/linguacall/internal/relay"
	"github.com/linguacall/linguacall/internal/services"
	"github.com/linguacall/linguacall/internal/storage"
	"github.com/linguacall/linguacall/internal/utils"
)

const (
	wsWriteWait = 10 * time.Second
	wsReadWait  = 60 * time.Second
)

type RelayDeps struct {
	Registry         *relay.Registry
	STT              stt.LiveProvider
	Translator       translate.Translator
	Profiles         services.ProfileService
	Captions         relay.CaptionSink // nil when Redis is not configured
	Archiver         storage.Archiver  // nil unless AUDIO_ARCHIVE_BUCKET is set
	Logger           *logrus.Logger
	TranslateTimeout time.Duration
}

type RelayHandler struct {
	deps     RelayDeps
	upgrader websocket.Upgrader
}

func NewRelayHandler(deps RelayDeps) *RelayHandler {
	return &RelayHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

// CallWS is the participant socket: ?token= and ?call_id= on the URL, raw
// audio in binary frames, JSON control messages in text frames. Bad token
// means HTTP 401 before any upgrade and no room side effects.
func (h *RelayHandler) CallWS(c *gin.Context) {
	const op = "RelayHandler.CallWS"

	userID, err := middleware.ParseToken(c.Query("token"))
	if err != nil {
		writeError(c, utils.E(utils.CodeUnauthorized, op, "invalid token", err))
		return
	}

	callID := strings.TrimSpace(c.Query("call_id"))

	// resolve the caller's display name and language; a missing profile
	// falls back to defaults rather than refusing the call
	displayName := "Guest"
	nativeLang := "english"
	if prof, perr := h.deps.Profiles.GetMe(c.Request.Context(), userID); perr == nil {
		if prof.DisplayName != "" {
			displayName = prof.DisplayName
		}
		if prof.NativeLanguage != "" {
			nativeLang = prof.NativeLanguage
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}

	wc := newWSConn(conn)
	if callID == "" {
		_ = wc.Close(relay.ClosePolicyViolation, "call_id is required")
		return
	}

	participant := &relay.Participant{
		UserID:         userID,
		DisplayName:    displayName,
		NativeLanguage: nativeLang,
		LanguageCode:   language.TranslationCode(nativeLang),
		Out:            wc,
	}

	var archive io.WriteCloser
	if h.deps.Archiver != nil {
		if w, aerr := h.deps.Archiver.NewRecording(c.Request.Context(), callID, userID); aerr == nil {
			archive = w
		} else {
			h.deps.Logger.WithError(aerr).Warn("audio archive unavailable for this call")
		}
	}

	sess := relay.NewSession(relay.Config{
		Registry:         h.deps.Registry,
		STT:              h.deps.STT,
		Translator:       h.deps.Translator,
		Captions:         h.deps.Captions,
		Archive:          archive,
		Logger:           h.deps.Logger,
		TranslateTimeout: h.deps.TranslateTimeout,
	}, callID, participant)

	if err := sess.Start(c.Request.Context()); err != nil {
		code := relay.CloseInternalError
		if utils.IsCode(err, utils.CodeInvalidArgument) {
			code = relay.ClosePolicyViolation
		}
		_ = wc.Close(code, "could not start relay session")
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	for {
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil {
			sess.Shutdown(relay.CloseNormal, "client disconnected")
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			sess.PushAudio(data)
		case websocket.TextMessage:
			sess.Control(data)
		}
	}
}

// wsConn serializes writes to one participant socket and tracks ping/pong
// liveness for the heartbeat monitor. Implements relay.Outbound.
type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex

	closed       bool
	awaitingPong atomic.Bool
}

func newWSConn(c *websocket.Conn) *wsConn {
	w := &wsConn{c: c}
	c.SetPongHandler(func(string) error {
		w.awaitingPong.Store(false)
		_ = c.SetReadDeadline(time.Now().Add(wsReadWait))
		return nil
	})
	return w
}

func (w *wsConn) SendJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return utils.E(utils.CodeUnavailable, "wsConn.SendJSON", "connection closed", nil)
	}
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteJSON(v)
}

func (w *wsConn) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return utils.E(utils.CodeUnavailable, "wsConn.Ping", "connection closed", nil)
	}
	w.awaitingPong.Store(true)
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *wsConn) Alive() bool {
	return !w.awaitingPong.Load()
}

func (w *wsConn) Close(code int, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	return w.c.Close()
}

var _ relay.Outbound = (*wsConn)(nil)
