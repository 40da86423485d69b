package synth

import (
	"context"
	"sync"

	"github.com/avatarlabs/speech-gateway/internal/audio"
)

// MockEngine is an in-memory Engine for tests. It produces a
// deterministic buffer whose length tracks the input text, and can be
// scripted to fail.
type MockEngine struct {
	EngineName string
	Target     TargetFormat

	// Err, when set, fails every call.
	Err error
	// FailFirst fails the first N calls before succeeding.
	FailFirst int
	// FailErr is returned for scripted failures (defaults to
	// ErrEngineUnavailable).
	FailErr error

	mu    sync.Mutex
	calls int
	texts []string
}

// NewMockEngine returns a healthy mock producing audio at the given
// target format.
func NewMockEngine(name string, target TargetFormat) *MockEngine {
	return &MockEngine{EngineName: name, Target: target}
}

// Name implements Engine.
func (m *MockEngine) Name() string { return m.EngineName }

// Synthesize implements Engine.
func (m *MockEngine) Synthesize(ctx context.Context, text, voiceID string) (*audio.Buffer, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if call <= m.FailFirst {
		if m.FailErr != nil {
			return nil, m.FailErr
		}
		return nil, ErrEngineUnavailable
	}

	// 40 samples per input byte keeps multi-frame utterances easy to
	// produce in tests.
	samples := make([]int16, len(text)*40)
	for i := range samples {
		samples[i] = int16(i % 512)
	}
	return &audio.Buffer{
		Samples:    samples,
		SampleRate: m.Target.SampleRate,
		Channels:   m.Target.Channels,
	}, nil
}

// Calls returns how many times Synthesize was invoked.
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Texts returns the texts synthesized so far, in order.
func (m *MockEngine) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}
