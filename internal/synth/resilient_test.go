package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/avatarlabs/speech-gateway/internal/audio"
	"github.com/avatarlabs/speech-gateway/internal/segment"
)

var testTarget = TargetFormat{SampleRate: 16000, Channels: 1}

func newTestResilient(t *testing.T, primary, fallback Engine, fallbackOnly bool) *Resilient {
	t.Helper()
	r, err := NewResilient(primary, fallback, ResilientConfig{
		FallbackOnly: fallbackOnly,
		Target:       testTarget,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResilient failed: %v", err)
	}
	return r
}

func testChunk(text string) segment.Chunk {
	return segment.Chunk{Content: text, Sequence: 1}
}

func TestResilient_PrimarySucceeds(t *testing.T) {
	primary := NewMockEngine("primary", testTarget)
	fallback := NewMockEngine("fallback", testTarget)
	r := newTestResilient(t, primary, fallback, false)

	buf, err := r.Convert(context.Background(), testChunk("你好，我是春儿。"), "zh-CN-XiaoxiaoNeural")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(buf.Samples) == 0 {
		t.Error("Expected non-empty audio")
	}
	if buf.SampleRate != 16000 || buf.Channels != 1 {
		t.Errorf("Buffer not normalized: rate=%d channels=%d", buf.SampleRate, buf.Channels)
	}
	if fallback.Calls() != 0 {
		t.Errorf("Fallback should not be invoked, got %d calls", fallback.Calls())
	}
}

func TestResilient_PrimaryFailureFallsBack(t *testing.T) {
	primary := NewMockEngine("primary", testTarget)
	primary.Err = ErrEngineUnavailable
	fallback := NewMockEngine("fallback", testTarget)
	r := newTestResilient(t, primary, fallback, false)

	buf, err := r.Convert(context.Background(), testChunk("很高兴见到你！"), "zh-CN-XiaoxiaoNeural")
	if err != nil {
		t.Fatalf("Convert should succeed via fallback: %v", err)
	}
	if len(buf.Samples) == 0 {
		t.Error("Expected audio from fallback")
	}
	if primary.Calls() != 1 {
		t.Errorf("Primary calls = %d, want 1", primary.Calls())
	}
	if fallback.Calls() != 1 {
		t.Errorf("Fallback calls = %d, want 1", fallback.Calls())
	}
}

func TestResilient_BothFail(t *testing.T) {
	primary := NewMockEngine("primary", testTarget)
	primary.Err = ErrEngineUnavailable
	fallback := NewMockEngine("fallback", testTarget)
	fallback.Err = errors.New("espeak exited 1")
	r := newTestResilient(t, primary, fallback, false)

	buf, err := r.Convert(context.Background(), testChunk("你好"), "zh-CN-XiaoxiaoNeural")
	if err == nil {
		t.Fatal("Expected error when both engines fail")
	}
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Errorf("Error should wrap ErrSynthesisFailed, got: %v", err)
	}
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("Error should carry the primary cause, got: %v", err)
	}
	if buf != nil {
		t.Error("No partial buffer should be returned on total failure")
	}
}

func TestResilient_FallbackOnlySkipsPrimary(t *testing.T) {
	primary := NewMockEngine("primary", testTarget)
	fallback := NewMockEngine("fallback", testTarget)
	r := newTestResilient(t, primary, fallback, true)

	if _, err := r.Convert(context.Background(), testChunk("测试"), "zh-CN-XiaoxiaoNeural"); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if primary.Calls() != 0 {
		t.Errorf("Primary should be skipped in fallback-only mode, got %d calls", primary.Calls())
	}
	if fallback.Calls() != 1 {
		t.Errorf("Fallback calls = %d, want 1", fallback.Calls())
	}
}

func TestResilient_ContextCancellationPropagates(t *testing.T) {
	primary := NewMockEngine("primary", testTarget)
	fallback := NewMockEngine("fallback", testTarget)
	r := newTestResilient(t, primary, fallback, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Convert(ctx, testChunk("你好"), "zh-CN-XiaoxiaoNeural")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if errors.Is(err, ErrSynthesisFailed) {
		t.Error("Cancellation must not be reported as synthesis failure")
	}
}

func TestResilient_EmptyAudioTreatedAsFailure(t *testing.T) {
	primary := &emptyEngine{}
	fallback := NewMockEngine("fallback", testTarget)
	r := newTestResilient(t, primary, fallback, false)

	buf, err := r.Convert(context.Background(), testChunk("你好"), "zh-CN-XiaoxiaoNeural")
	if err != nil {
		t.Fatalf("Convert should recover via fallback: %v", err)
	}
	if len(buf.Samples) == 0 {
		t.Error("Expected fallback audio")
	}
	if fallback.Calls() != 1 {
		t.Errorf("Fallback calls = %d, want 1", fallback.Calls())
	}
}

func TestResilient_RequiresFallbackEngine(t *testing.T) {
	primary := NewMockEngine("primary", testTarget)
	if _, err := NewResilient(primary, nil, ResilientConfig{Target: testTarget}, zerolog.Nop()); err == nil {
		t.Error("Expected error without a fallback engine")
	}
	if _, err := NewResilient(nil, NewMockEngine("fallback", testTarget), ResilientConfig{Target: testTarget}, zerolog.Nop()); err == nil {
		t.Error("Expected error without a primary engine outside fallback-only mode")
	}
}

// emptyEngine succeeds but returns no samples.
type emptyEngine struct{}

func (e *emptyEngine) Name() string { return "empty" }

func (e *emptyEngine) Synthesize(ctx context.Context, text, voiceID string) (*audio.Buffer, error) {
	return &audio.Buffer{SampleRate: 16000, Channels: 1}, nil
}
