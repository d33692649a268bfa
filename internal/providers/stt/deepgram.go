package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/linguacall/linguacall/internal/utils"
)

const (
	defaultDeepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultDeepgramModel    = "nova-2"
	keepAliveInterval       = 5 * time.Second
)

// Deepgram streams audio to the Deepgram live transcription endpoint over
// WebSocket and turns its Results messages into transcript events.
type Deepgram struct {
	APIKey         string
	Endpoint       string
	Model          string
	SampleRate     int
	ConnectTimeout time.Duration
	Logger         *logrus.Logger
}

func NewDeepgram(apiKey string, log *logrus.Logger) *Deepgram {
	return &Deepgram{
		APIKey:         apiKey,
		Endpoint:       defaultDeepgramEndpoint,
		Model:          defaultDeepgramModel,
		SampleRate:     16000,
		ConnectTimeout: 10 * time.Second,
		Logger:         log,
	}
}

func (d *Deepgram) OpenStream(ctx context.Context, languageCode string) (LiveSession, error) {
	const op = "Deepgram.OpenStream"

	if d.APIKey == "" {
		return nil, utils.E(utils.CodeUnavailable, op, "deepgram api key is not configured", nil)
	}

	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = defaultDeepgramEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "invalid endpoint", err)
	}

	q := u.Query()
	q.Set("model", d.modelOrDefault())
	q.Set("language", languageCode)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.sampleRateOrDefault()))
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: d.connectTimeoutOrDefault()}
	header := http.Header{"Authorization": {"Token " + d.APIKey}}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		msg := "transcription backend refused connection"
		if resp != nil {
			msg = fmt.Sprintf("transcription backend refused connection (status %d)", resp.StatusCode)
		}
		return nil, utils.E(utils.CodeUnavailable, op, msg, err)
	}

	s := &deepgramSession{
		conn:     conn,
		language: languageCode,
		results:  make(chan Result, 16),
		errs:     make(chan error, 4),
		done:     make(chan CloseEvent, 1),
		stop:     make(chan struct{}),
		log: d.Logger.WithFields(logrus.Fields{
			"provider": "deepgram",
			"language": languageCode,
		}),
	}

	go s.readLoop()
	go s.keepAlive()
	return s, nil
}

func (d *Deepgram) Close() error { return nil }

func (d *Deepgram) modelOrDefault() string {
	if d.Model == "" {
		return defaultDeepgramModel
	}
	return d.Model
}

func (d *Deepgram) sampleRateOrDefault() int {
	if d.SampleRate <= 0 {
		return 16000
	}
	return d.SampleRate
}

func (d *Deepgram) connectTimeoutOrDefault() time.Duration {
	if d.ConnectTimeout <= 0 {
		return 10 * time.Second
	}
	return d.ConnectTimeout
}

type deepgramSession struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	language string

	results chan Result
	errs    chan error
	done    chan CloseEvent
	stop    chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once

	log *logrus.Entry
}

// dgMessage covers the subset of the live API envelope the relay cares
// about; every other message kind is skipped.
type dgMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramSession) SendAudio(p []byte) error {
	if s.closing.Load() {
		return nil // late push after close: drop
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (s *deepgramSession) Results() <-chan Result  { return s.results }
func (s *deepgramSession) Errs() <-chan error      { return s.errs }
func (s *deepgramSession) Done() <-chan CloseEvent { return s.done }

func (s *deepgramSession) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.stop)

		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		_ = s.conn.Close()
	})
	return nil
}

func (s *deepgramSession) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			ev := CloseEvent{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
			if ce, ok := err.(*websocket.CloseError); ok {
				ev = CloseEvent{Code: ce.Code, Reason: ce.Text}
			}
			if !s.closing.Load() {
				s.done <- ev
			}
			return
		}

		var msg dgMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.WithError(err).Debug("unparseable backend message, skipping")
			continue
		}
		if msg.Type == "Error" {
			select {
			case s.errs <- fmt.Errorf("backend error: %s", msg.Description):
			default:
			}
			continue
		}
		if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
			continue
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		r := Result{
			Text:        alt.Transcript,
			Confidence:  alt.Confidence,
			IsFinal:     msg.IsFinal,
			SpeechFinal: msg.SpeechFinal,
			Language:    s.language,
		}
		select {
		case s.results <- r:
		case <-s.stop:
			return
		}
	}
}

// keepAlive keeps the upstream socket open through silence; Deepgram drops
// connections that go quiet for ~10s.
func (s *deepgramSession) keepAlive() {
	t := time.NewTicker(keepAliveInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

var _ LiveProvider = (*Deepgram)(nil)
