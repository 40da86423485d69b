// Package pipeline composes segmentation, synthesis, framing and
// delivery into the per-session utterance pipeline.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/avatarlabs/speech-gateway/internal/audio"
	"github.com/avatarlabs/speech-gateway/internal/observability"
	"github.com/avatarlabs/speech-gateway/internal/segment"
)

// DeliveryChannel is the ordered hand-off of frames to the rendering
// consumer. DeliverFrame is a synchronous push; the consumer buffers
// and paces playback itself.
type DeliveryChannel interface {
	DeliverFrame(frame audio.Frame) error
}

// Synthesizer converts one chunk to a normalized audio buffer.
// Satisfied by synth.Resilient.
type Synthesizer interface {
	Convert(ctx context.Context, chunk segment.Chunk, voiceID string) (*audio.Buffer, error)
}

// VoiceSource supplies the active voice identifier per conversion.
type VoiceSource interface {
	Current() string
}

// Config holds pipeline tuning knobs.
type Config struct {
	// FrameSize is the fixed frame length in samples.
	FrameSize int

	// QueueDepth bounds how far segmentation may run ahead of
	// synthesis.
	QueueDepth int

	// OnUtteranceError is invoked when an utterance is dropped after
	// synthesis exhausted every engine. May be nil. The pipeline
	// continues with the next chunk either way.
	OnUtteranceError func(chunk segment.Chunk, err error)
}

type queuedChunk struct {
	chunk segment.Chunk
	turn  uint64
}

// Pipeline drives one utterance stream: tokens in, frames out.
// Segmentation runs on the token-feed path while a single worker
// synthesizes chunks in strict FIFO order, so frames are never
// reordered across utterances. Cancellation takes effect at utterance
// granularity.
type Pipeline struct {
	cfg    Config
	synth  Synthesizer
	sink   DeliveryChannel
	voices VoiceSource
	logger zerolog.Logger

	segMu sync.Mutex
	seg   *segment.Segmenter

	queue  chan queuedChunk
	turn   atomic.Uint64
	closed bool

	inflightMu     sync.Mutex
	cancelInflight context.CancelFunc

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New builds a pipeline and starts its synthesis worker.
func New(cfg Config, seg *segment.Segmenter, synth Synthesizer, sink DeliveryChannel, voices VoiceSource, logger zerolog.Logger) *Pipeline {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:        cfg,
		synth:      synth,
		sink:       sink,
		voices:     voices,
		logger:     logger,
		seg:        seg,
		queue:      make(chan queuedChunk, cfg.QueueDepth),
		baseCtx:    ctx,
		baseCancel: cancel,
	}

	p.wg.Add(1)
	go p.run()
	return p
}

// Feed consumes one token from the model stream. Complete chunks are
// queued for synthesis; segmentation itself never blocks on audio
// work unless the queue is full.
func (p *Pipeline) Feed(token string) {
	p.segMu.Lock()
	if p.closed {
		p.segMu.Unlock()
		return
	}
	chunks := p.seg.Feed(token)
	turn := p.turn.Load()
	p.segMu.Unlock()

	p.enqueue(chunks, turn)
}

// EndOfTurn flushes trailing partial text as the final chunk of the
// turn.
func (p *Pipeline) EndOfTurn() {
	p.segMu.Lock()
	if p.closed {
		p.segMu.Unlock()
		return
	}
	final := p.seg.Flush()
	turn := p.turn.Load()
	p.segMu.Unlock()

	if final != nil {
		p.enqueue([]segment.Chunk{*final}, turn)
	}
}

// CancelTurn discards all queued and in-flight chunks of the current
// turn. Frames of an utterance already being delivered are not
// suppressed mid-delivery; everything after it is.
func (p *Pipeline) CancelTurn() {
	p.turn.Add(1)

	p.segMu.Lock()
	p.seg.Reset()
	p.segMu.Unlock()

	// Drain whatever is queued; stale entries that slip through are
	// skipped by the worker's turn check.
	for {
		select {
		case <-p.queue:
		default:
			p.cancelCurrent()
			return
		}
	}
}

// Close shuts the pipeline down. Queued chunks are abandoned. The
// queue channel is never closed; late Feeds racing Close park on the
// select in enqueue and bail out through the cancelled base context.
func (p *Pipeline) Close() {
	p.segMu.Lock()
	if p.closed {
		p.segMu.Unlock()
		return
	}
	p.closed = true
	p.segMu.Unlock()

	p.turn.Add(1)
	p.baseCancel()
	p.wg.Wait()
}

func (p *Pipeline) enqueue(chunks []segment.Chunk, turn uint64) {
	for _, chunk := range chunks {
		observability.RecordChunk()
		select {
		case p.queue <- queuedChunk{chunk: chunk, turn: turn}:
		case <-p.baseCtx.Done():
			return
		}
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		var qc queuedChunk
		select {
		case <-p.baseCtx.Done():
			return
		case qc = <-p.queue:
		}

		if qc.turn != p.turn.Load() {
			continue
		}

		ctx, cancel := context.WithCancel(p.baseCtx)
		p.setCancel(cancel)
		buf, err := p.synth.Convert(ctx, qc.chunk, p.voices.Current())
		p.setCancel(nil)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				continue // turn cancelled mid-synthesis
			}
			p.logger.Error().
				Err(err).
				Int("sequence", qc.chunk.Sequence).
				Msg("Utterance dropped, continuing with next chunk")
			observability.RecordUtteranceFailure()
			if p.cfg.OnUtteranceError != nil {
				p.cfg.OnUtteranceError(qc.chunk, err)
			}
			continue
		}

		// A turn cancelled during synthesis drops the whole utterance
		// before the first frame goes out.
		if qc.turn != p.turn.Load() {
			continue
		}

		for _, frame := range audio.Frames(buf, p.cfg.FrameSize) {
			if err := p.sink.DeliverFrame(frame); err != nil {
				p.logger.Warn().Err(err).Int("sequence", qc.chunk.Sequence).Msg("Frame delivery failed")
				observability.RecordError("delivery", "pipeline")
				break
			}
			observability.RecordFrameDelivered()
		}
	}
}

func (p *Pipeline) setCancel(cancel context.CancelFunc) {
	p.inflightMu.Lock()
	p.cancelInflight = cancel
	p.inflightMu.Unlock()
}

func (p *Pipeline) cancelCurrent() {
	p.inflightMu.Lock()
	if p.cancelInflight != nil {
		p.cancelInflight()
	}
	p.inflightMu.Unlock()
}
