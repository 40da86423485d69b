package transport

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/zaf/g711"

	"github.com/avatarlabs/speech-gateway/internal/audio"
	"github.com/avatarlabs/speech-gateway/internal/config"
	"github.com/avatarlabs/speech-gateway/internal/llm"
	"github.com/avatarlabs/speech-gateway/internal/observability"
	"github.com/avatarlabs/speech-gateway/internal/pipeline"
	"github.com/avatarlabs/speech-gateway/internal/segment"
	"github.com/avatarlabs/speech-gateway/internal/voice"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Rendering clients connect from anywhere during development;
		// lock this down per deployment.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// TurnStreamer drives one model turn, streaming tokens into the sink.
// Satisfied by llm.Client.
type TurnStreamer interface {
	StreamTurn(ctx context.Context, userText string, sink llm.TokenSink) error
}

// Session is one connected avatar client. It owns a pipeline and
// implements its DeliveryChannel: synthesized frames are buffered in
// a ring and written to the socket by a dedicated writer, so a slow
// client never stalls synthesis.
type Session struct {
	conn     *websocket.Conn
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	streamer TurnStreamer // nil when no model is configured
	catalog  *voice.Catalog

	ring     *audio.FrameRing
	frameSeq atomic.Uint64

	sessionID string
	logger    zerolog.Logger

	writeMu sync.Mutex

	// turnGen identifies the turn that owns cancelTurn; a superseded
	// turn's goroutine must not clear its successor's cancel func.
	turnMu     sync.Mutex
	cancelTurn context.CancelFunc
	turnGen    uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wires a pipeline to a freshly upgraded connection.
func NewSession(conn *websocket.Conn, cfg *config.Config, synth pipeline.Synthesizer, catalog *voice.Catalog, streamer TurnStreamer) *Session {
	sessionID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(sessionID).
		With().
		Str("component", "session").
		Logger()

	s := &Session{
		conn:      conn,
		cfg:       cfg,
		streamer:  streamer,
		catalog:   catalog,
		ring:      audio.NewFrameRing(cfg.FrameRingSize),
		sessionID: sessionID,
		logger:    logger,
		done:      make(chan struct{}),
	}

	seg := segment.NewSegmenter(cfg.BreakRunes, cfg.ChunkMinLength)
	s.pipeline = pipeline.New(pipeline.Config{
		FrameSize:  cfg.FrameSize,
		QueueDepth: cfg.ChunkQueueDepth,
		OnUtteranceError: func(chunk segment.Chunk, err error) {
			s.sendError("utterance dropped: " + err.Error())
		},
	}, seg, synth, s, catalog, logger)

	return s
}

// HandleAvatarWS is the entry point for avatar client connections.
func HandleAvatarWS(cfg *config.Config, synth pipeline.Synthesizer, catalog *voice.Catalog, streamer TurnStreamer) http.HandlerFunc {
	logger := observability.WithComponent("transport")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		session := NewSession(conn, cfg, synth, catalog, streamer)
		session.Run()
	}
}

// Run serves the session until the client disconnects.
func (s *Session) Run() {
	observability.RecordSessionStart()
	s.logger.Info().Msg("Avatar session started")

	defer s.close()

	go s.writeFrames()

	if err := s.sendReady(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send ready message")
		return
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}

		msgType, raw, err := Unmarshal(data)
		if err != nil {
			s.sendError(err.Error())
			continue
		}
		s.handleMessage(msgType, raw)
	}
}

func (s *Session) handleMessage(msgType MessageType, raw []byte) {
	switch msgType {
	case TypeAsk:
		payload, err := UnmarshalPayload[AskPayload](raw)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.startTurn(payload.Text)

	case TypeSay:
		payload, err := UnmarshalPayload[SayPayload](raw)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		if payload.Text == "" {
			return
		}
		observability.RecordTurn()
		s.pipeline.Feed(payload.Text)
		s.pipeline.EndOfTurn()

	case TypeInterrupt:
		s.interrupt()

	case TypeVoice:
		payload, err := UnmarshalPayload[VoicePayload](raw)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		effective := s.catalog.SetVoice(payload.ID)
		s.send(TypeVoice, VoicePayloadAck{ID: effective})

	default:
		s.sendError("unknown message type: " + string(msgType))
	}
}

// startTurn runs one model turn, streaming tokens into the pipeline.
func (s *Session) startTurn(text string) {
	if s.streamer == nil {
		s.sendError("no language model configured; use say")
		return
	}
	if text == "" {
		return
	}

	s.turnMu.Lock()
	if s.cancelTurn != nil {
		// A new ask supersedes the turn in progress.
		s.cancelTurn()
		s.pipeline.CancelTurn()
		s.ring.Clear()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelTurn = cancel
	s.turnGen++
	gen := s.turnGen
	s.turnMu.Unlock()

	observability.RecordTurn()

	go func() {
		defer func() {
			s.turnMu.Lock()
			// Clear only if this turn still owns the slot; a newer
			// ask may have installed its own cancel func.
			if s.turnGen == gen {
				s.cancelTurn = nil
			}
			s.turnMu.Unlock()
			cancel()
		}()

		if err := s.streamer.StreamTurn(ctx, text, s.pipeline); err != nil {
			if ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("Model turn failed")
				observability.RecordError("llm", "session")
				s.sendError("model turn failed: " + err.Error())
			}
			return
		}
		s.send(TypeTurnDone, nil)
	}()
}

// interrupt discards the current turn at utterance granularity.
func (s *Session) interrupt() {
	s.turnMu.Lock()
	if s.cancelTurn != nil {
		s.cancelTurn()
		s.cancelTurn = nil
	}
	s.turnMu.Unlock()

	s.pipeline.CancelTurn()
	s.ring.Clear()
	s.logger.Info().Msg("Turn interrupted")
}

// DeliverFrame implements pipeline.DeliveryChannel. Frames are queued
// for the socket writer; when the client cannot keep up the frame is
// dropped rather than blocking synthesis.
func (s *Session) DeliverFrame(frame audio.Frame) error {
	if !s.ring.Push(frame) {
		observability.RecordFrameDropped()
		s.logger.Warn().Msg("Frame ring full, dropping frame")
	}
	return nil
}

// writeFrames drains the ring onto the socket.
func (s *Session) writeFrames() {
	for {
		frame, ok := s.ring.Pop()
		if !ok {
			return
		}

		payload := FramePayload{
			Seq:   s.frameSeq.Add(1),
			Audio: base64.StdEncoding.EncodeToString(s.encode(frame.Samples)),
		}
		if frame.Event != nil {
			payload.Event = string(frame.Event.Status)
		}

		if err := s.send(TypeFrame, payload); err != nil {
			s.logger.Warn().Err(err).Msg("Frame write failed")
			return
		}
		observability.RecordAudioBytes(s.cfg.OutputEncoding, len(payload.Audio))
	}
}

// encode converts frame samples to the session's wire encoding.
func (s *Session) encode(samples []int16) []byte {
	pcm := audio.SamplesToBytes(samples)
	if s.cfg.OutputEncoding == "ulaw" {
		return g711.EncodeUlaw(pcm)
	}
	return pcm
}

func (s *Session) sendReady() error {
	return s.send(TypeReady, ReadyPayload{
		SessionID:  s.sessionID,
		SampleRate: s.cfg.TargetSampleRate,
		Channels:   s.cfg.TargetChannels,
		FrameSize:  s.cfg.FrameSize,
		Encoding:   s.cfg.OutputEncoding,
		Voices:     s.catalog.Voices(),
	})
}

func (s *Session) sendError(message string) {
	s.send(TypeError, ErrorPayload{Message: message})
}

func (s *Session) send(msgType MessageType, payload interface{}) error {
	data, err := Marshal(msgType, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.interrupt()
		s.pipeline.Close()
		s.ring.Close()
		s.conn.Close()
		close(s.done)
		observability.RecordSessionEnd()
		s.logger.Info().Msg("Avatar session ended")
	})
}
