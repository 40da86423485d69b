package synth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/avatarlabs/speech-gateway/internal/audio"
)

// LocalEngineConfig configures the offline fallback engine.
type LocalEngineConfig struct {
	// Command is the synthesizer invocation. The tokens {voice} and
	// {rate} are replaced at construction; the text is written to
	// stdin and a WAV stream is expected on stdout.
	// Example: "espeak-ng --stdout -v {voice} -s {rate}"
	Command string

	// Voice fills {voice}. The local synthesizer has its own voice
	// namespace; catalog identifiers from the network engine mean
	// nothing to it.
	Voice string

	// Rate is the speaking rate passed for {rate}.
	Rate int

	Target TargetFormat
}

// LocalEngine drives a local offline synthesizer process. The last
// line of defense: once constructed it is expected to always succeed.
// The underlying engine is not reentrant, so calls are serialized.
type LocalEngine struct {
	argv   []string
	target TargetFormat
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewLocalEngine parses and probes the synthesizer command. A missing
// or unresolvable binary is a configuration error (ErrNoLocalVoice);
// callers treat it as fatal at startup.
func NewLocalEngine(cfg LocalEngineConfig, logger zerolog.Logger) (*LocalEngine, error) {
	argv, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: parse command %q: %w", ErrNoLocalVoice, cfg.Command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty synthesizer command", ErrNoLocalVoice)
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("%w: %q not found: %w", ErrNoLocalVoice, argv[0], err)
	}

	rate := cfg.Rate
	if rate == 0 {
		rate = 150
	}

	for i, arg := range argv {
		arg = strings.ReplaceAll(arg, "{voice}", cfg.Voice)
		argv[i] = strings.ReplaceAll(arg, "{rate}", strconv.Itoa(rate))
	}

	return &LocalEngine{
		argv:   argv,
		target: cfg.Target,
		logger: logger.With().Str("engine", "local").Logger(),
	}, nil
}

// Name implements Engine.
func (l *LocalEngine) Name() string { return "local" }

// Synthesize implements Engine. Runs the synthesizer process with the
// text on stdin and decodes the WAV output to the target format. The
// requested voiceID is ignored: the local engine always speaks with
// its configured voice.
func (l *LocalEngine) Synthesize(ctx context.Context, text, voiceID string) (*audio.Buffer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cmd := exec.CommandContext(ctx, l.argv[0], l.argv[1:]...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		l.logger.Error().Err(err).Str("stderr", stderr.String()).Msg("Local synthesizer failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrEngineUnavailable, l.argv[0], err)
	}

	buf, err := decodeWAV(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: decode wav: %w", ErrEngineUnavailable, err)
	}

	return audio.Normalize(buf, l.target.SampleRate, l.target.Channels), nil
}

// decodeWAV reads a whole WAV stream into an int16 buffer.
func decodeWAV(data []byte) (*audio.Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav stream (%d bytes)", len(data))
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}

	return &audio.Buffer{
		Samples:    intBufferToSamples(pcm, int(dec.BitDepth)),
		SampleRate: pcm.Format.SampleRate,
		Channels:   pcm.Format.NumChannels,
	}, nil
}

func intBufferToSamples(pcm *goaudio.IntBuffer, bitDepth int) []int16 {
	samples := make([]int16, len(pcm.Data))
	switch bitDepth {
	case 8:
		for i, v := range pcm.Data {
			samples[i] = int16((v - 128) << 8)
		}
	case 24:
		for i, v := range pcm.Data {
			samples[i] = int16(v >> 8)
		}
	case 32:
		for i, v := range pcm.Data {
			samples[i] = int16(v >> 16)
		}
	default: // 16
		for i, v := range pcm.Data {
			samples[i] = int16(v)
		}
	}
	return samples
}
