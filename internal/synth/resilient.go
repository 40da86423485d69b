package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avatarlabs/speech-gateway/internal/audio"
	"github.com/avatarlabs/speech-gateway/internal/observability"
	"github.com/avatarlabs/speech-gateway/internal/segment"
)

// ResilientConfig configures engine selection.
type ResilientConfig struct {
	// FallbackOnly skips the primary engine entirely, for deployments
	// with no network access.
	FallbackOnly bool

	Target TargetFormat
}

// Resilient is the synthesizer the rest of the system talks to. One
// call walks an explicit two-step policy: attempt the primary engine,
// on a recoverable failure attempt the fallback, and only if both
// fail surface ErrSynthesisFailed. Primary failures are absorbed here
// and never reach the caller.
type Resilient struct {
	primary      Engine
	fallback     Engine
	fallbackOnly bool
	target       TargetFormat
	logger       zerolog.Logger
}

// NewResilient builds the resilient synthesizer. The fallback engine
// is required; the primary may be nil only in fallback-only mode.
func NewResilient(primary, fallback Engine, cfg ResilientConfig, logger zerolog.Logger) (*Resilient, error) {
	if fallback == nil {
		return nil, fmt.Errorf("%w: no fallback engine", ErrNoLocalVoice)
	}
	if primary == nil && !cfg.FallbackOnly {
		return nil, errors.New("primary engine required unless fallback-only mode is set")
	}

	return &Resilient{
		primary:      primary,
		fallback:     fallback,
		fallbackOnly: cfg.FallbackOnly,
		target:       cfg.Target,
		logger:       logger,
	}, nil
}

// Convert synthesizes one chunk. The returned buffer is normalized to
// the target format regardless of which engine produced it. The only
// errors callers see are ErrSynthesisFailed and context errors.
func (r *Resilient) Convert(ctx context.Context, chunk segment.Chunk, voiceID string) (*audio.Buffer, error) {
	var primaryErr error

	if !r.fallbackOnly {
		buf, err := r.attempt(ctx, r.primary, chunk.Content, voiceID)
		if err == nil {
			return buf, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		primaryErr = err
		r.logger.Warn().
			Err(err).
			Int("sequence", chunk.Sequence).
			Msg("Primary engine failed, attempting fallback")
	}

	buf, err := r.attempt(ctx, r.fallback, chunk.Content, voiceID)
	if err == nil {
		return buf, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if primaryErr != nil {
		return nil, fmt.Errorf("%w: primary: %w; fallback: %w", ErrSynthesisFailed, primaryErr, err)
	}
	return nil, fmt.Errorf("%w: fallback: %w", ErrSynthesisFailed, err)
}

func (r *Resilient) attempt(ctx context.Context, engine Engine, text, voiceID string) (*audio.Buffer, error) {
	start := time.Now()
	buf, err := engine.Synthesize(ctx, text, voiceID)
	observability.RecordSynthesis(engine.Name(), err == nil, time.Since(start))

	if err != nil {
		return nil, err
	}
	if buf == nil || len(buf.Samples) == 0 {
		return nil, fmt.Errorf("%w: %s returned empty audio", ErrEngineUnavailable, engine.Name())
	}

	return audio.Normalize(buf, r.target.SampleRate, r.target.Channels), nil
}
