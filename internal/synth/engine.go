// Package synth converts speakable text chunks into normalized PCM
// audio, selecting between a network neural engine and a local
// offline fallback.
package synth

import (
	"context"
	"errors"

	"github.com/avatarlabs/speech-gateway/internal/audio"
)

var (
	// ErrEngineUnavailable reports a transient transport, decode or
	// resample failure of an engine. Recoverable by falling back.
	ErrEngineUnavailable = errors.New("synthesis engine unavailable")

	// ErrUnsupportedVoice reports that the engine rejected the
	// requested voice identifier. Recoverable by falling back.
	ErrUnsupportedVoice = errors.New("unsupported voice")

	// ErrSynthesisFailed reports that every engine failed for one
	// utterance. Fatal for that utterance only.
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrNoLocalVoice reports that the local fallback engine could not
	// initialize. Fatal for the whole pipeline: no last line of
	// defense would remain.
	ErrNoLocalVoice = errors.New("no local voice installed")
)

// Engine is a backend capable of converting text to audio. Both
// variants return PCM at the deployment target format; partial output
// is never returned on error.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string

	// Synthesize converts text to a normalized PCM buffer using the
	// given voice.
	Synthesize(ctx context.Context, text, voiceID string) (*audio.Buffer, error)
}

// TargetFormat is the deployment-wide output format every engine
// normalizes to.
type TargetFormat struct {
	SampleRate int
	Channels   int
}
