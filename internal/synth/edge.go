package synth

import (
	"context"
	"encoding/binary"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/avatarlabs/speech-gateway/internal/audio"
	"github.com/avatarlabs/speech-gateway/internal/resilience"
)

// DefaultEdgeEndpoint is the Edge neural voice streaming endpoint.
const DefaultEdgeEndpoint = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1?TrustedClientToken=6A5AA1D4EAFF4E9FB37E23D68491D6F4"

// VoiceChecker reports whether a voice identifier is known. A nil
// checker accepts every identifier.
type VoiceChecker interface {
	Has(id string) bool
}

// EdgeEngineConfig configures the network neural voice engine.
type EdgeEngineConfig struct {
	Endpoint     string
	OutputFormat string        // service-side format, e.g. "raw-24khz-16bit-mono-pcm"
	NativeRate   int           // sample rate the service emits for OutputFormat
	Timeout      time.Duration // bound on one synthesis call, dial included
	Target       TargetFormat
}

// EdgeEngine synthesizes speech through the Edge neural voice service
// over a streaming WebSocket channel. It accumulates the audio
// messages of one turn, decodes them to PCM and resamples to the
// target format. Stateless between calls, safe for concurrent use.
type EdgeEngine struct {
	cfg    EdgeEngineConfig
	voices VoiceChecker
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewEdgeEngine creates the primary network-backed engine.
func NewEdgeEngine(cfg EdgeEngineConfig, voices VoiceChecker, logger zerolog.Logger) *EdgeEngine {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEdgeEndpoint
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "raw-24khz-16bit-mono-pcm"
	}
	if cfg.NativeRate == 0 {
		cfg.NativeRate = 24000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &EdgeEngine{
		cfg:    cfg,
		voices: voices,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		logger: logger.With().Str("engine", "edge").Logger(),
	}
}

// Name implements Engine.
func (e *EdgeEngine) Name() string { return "edge" }

// Synthesize implements Engine. Every transport, protocol or decode
// failure is reported as ErrEngineUnavailable; partial audio is
// discarded.
func (e *EdgeEngine) Synthesize(ctx context.Context, text, voiceID string) (*audio.Buffer, error) {
	if e.voices != nil && !e.voices.Has(voiceID) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVoice, voiceID)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	conn, err := e.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %w", ErrEngineUnavailable, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(e.cfg.Timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	requestID := strings.ReplaceAll(uuid.New().String(), "-", "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(e.speechConfigMessage())); err != nil {
		return nil, fmt.Errorf("%w: send speech.config: %w", ErrEngineUnavailable, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(e.ssmlMessage(requestID, text, voiceID))); err != nil {
		return nil, fmt.Errorf("%w: send ssml: %w", ErrEngineUnavailable, err)
	}

	pcm, err := e.readTurn(conn)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: service returned no audio", ErrEngineUnavailable)
	}

	samples, err := audio.BytesToSamples(pcm)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrEngineUnavailable, err)
	}

	native := &audio.Buffer{
		Samples:    samples,
		SampleRate: e.cfg.NativeRate,
		Channels:   1,
	}
	return audio.Normalize(native, e.cfg.Target.SampleRate, e.cfg.Target.Channels), nil
}

// dial connects to the service, retrying once on transient network
// errors before giving up.
func (e *EdgeEngine) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := e.cfg.Endpoint
	if strings.Contains(endpoint, "?") {
		endpoint += "&ConnectionId=" + strings.ReplaceAll(uuid.New().String(), "-", "")
	}

	var conn *websocket.Conn
	err := resilience.Retry(ctx, func() error {
		var dialErr error
		conn, _, dialErr = e.dialer.DialContext(ctx, endpoint, nil)
		return dialErr
	}, &resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 200 * time.Millisecond,
	}, resilience.IsRetryableNetworkError)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readTurn collects the audio payloads of one synthesis turn until
// the service signals turn.end.
func (e *EdgeEngine) readTurn(conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: read: %w", ErrEngineUnavailable, err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			path, payload, err := splitBinaryMessage(msg)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
			}
			if path == "audio" {
				pcm = append(pcm, payload...)
			}

		case websocket.TextMessage:
			header, _, _ := strings.Cut(string(msg), "\r\n\r\n")
			if strings.Contains(header, "Path:turn.end") {
				return pcm, nil
			}
		}
	}
}

func (e *EdgeEngine) speechConfigMessage() string {
	return "X-Timestamp:" + edgeTimestamp() + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + e.cfg.OutputFormat + `"}}}}`
}

func (e *EdgeEngine) ssmlMessage(requestID, text, voiceID string) string {
	ssml := `<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>` +
		`<voice name='` + voiceID + `'>` + html.EscapeString(text) + `</voice></speak>`

	return "X-RequestId:" + requestID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + edgeTimestamp() + "\r\n" +
		"Path:ssml\r\n\r\n" + ssml
}

func edgeTimestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

// splitBinaryMessage parses the service's binary framing: a big-endian
// uint16 header length, the ASCII headers, then the payload. Returns
// the Path header value and the payload.
func splitBinaryMessage(msg []byte) (string, []byte, error) {
	if len(msg) < 2 {
		return "", nil, fmt.Errorf("binary message too short: %d bytes", len(msg))
	}
	headerLen := int(binary.BigEndian.Uint16(msg[:2]))
	if len(msg) < 2+headerLen {
		return "", nil, fmt.Errorf("binary header length %d exceeds message size %d", headerLen, len(msg))
	}

	path := ""
	for _, line := range strings.Split(string(msg[2:2+headerLen]), "\r\n") {
		if name, value, ok := strings.Cut(line, ":"); ok && name == "Path" {
			path = value
		}
	}
	return path, msg[2+headerLen:], nil
}
