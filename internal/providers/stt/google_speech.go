package stt

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/linguacall/linguacall/internal/utils"
)

// GoogleSpeech adapts Cloud Speech-to-Text StreamingRecognize to the
// LiveSession contract. Selected with STT_PROVIDER=google.
type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
	Logger       *logrus.Logger
}

func NewGoogleSpeech(ctx context.Context, log *logrus.Logger) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
		Logger:       log,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) OpenStream(ctx context.Context, languageCode string) (LiveSession, error) {
	const op = "GoogleSpeech.OpenStream"

	if languageCode == "" {
		languageCode = "en-US"
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := g.c.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, utils.E(utils.CodeUnavailable, op, "transcription backend refused connection", err)
	}

	cfg := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   g.Encoding,
					SampleRateHertz:            g.SampleRateHz,
					LanguageCode:               languageCode,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	}
	if err := stream.Send(cfg); err != nil {
		cancel()
		return nil, utils.E(utils.CodeUnavailable, op, "failed to send stream config", err)
	}

	s := &googleSession{
		stream:   stream,
		cancel:   cancel,
		language: languageCode,
		results:  make(chan Result, 16),
		errs:     make(chan error, 4),
		done:     make(chan CloseEvent, 1),
		stop:     make(chan struct{}),
		log: g.Logger.WithFields(logrus.Fields{
			"provider": "google",
			"language": languageCode,
		}),
	}
	go s.recvLoop()
	return s, nil
}

type googleSession struct {
	stream   speechpb.Speech_StreamingRecognizeClient
	cancel   context.CancelFunc
	sendMu   sync.Mutex
	language string

	results chan Result
	errs    chan error
	done    chan CloseEvent
	stop    chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once

	log *logrus.Entry
}

func (s *googleSession) SendAudio(p []byte) error {
	if s.closing.Load() {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: p,
		},
	})
}

func (s *googleSession) Results() <-chan Result  { return s.results }
func (s *googleSession) Errs() <-chan error      { return s.errs }
func (s *googleSession) Done() <-chan CloseEvent { return s.done }

func (s *googleSession) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.stop)
		s.sendMu.Lock()
		_ = s.stream.CloseSend()
		s.sendMu.Unlock()
		s.cancel()
	})
	return nil
}

func (s *googleSession) recvLoop() {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if s.closing.Load() {
				return
			}
			ev := CloseEvent{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
			if errors.Is(err, io.EOF) {
				ev = CloseEvent{Code: websocket.CloseNormalClosure, Reason: "stream ended"}
			}
			s.done <- ev
			return
		}

		if e := resp.GetError(); e != nil {
			select {
			case s.errs <- errors.New(e.GetMessage()):
			default:
			}
			continue
		}

		for _, r := range resp.GetResults() {
			alts := r.GetAlternatives()
			if len(alts) == 0 || alts[0].GetTranscript() == "" {
				continue
			}
			out := Result{
				Text:        alts[0].GetTranscript(),
				Confidence:  float64(alts[0].GetConfidence()),
				IsFinal:     r.GetIsFinal(),
				SpeechFinal: r.GetIsFinal(), // no separate endpointing signal here
				Language:    s.language,
			}
			select {
			case s.results <- out:
			case <-s.stop:
				return
			}
		}
	}
}

var _ LiveProvider = (*GoogleSpeech)(nil)
