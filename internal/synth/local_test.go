package synth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// writeWAVFixture writes a short 16-bit mono WAV file.
func writeWAVFixture(t *testing.T, path string, sampleRate, samples int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, samples)
	for i := range data {
		data[i] = (i % 256) - 128
	}
	if err := enc.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:   data,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

// writeStubSynthesizer writes a script that records its arguments and
// emits a fixed WAV stream, standing in for espeak-ng.
func writeStubSynthesizer(t *testing.T, dir string) (command, argsFile string) {
	t.Helper()

	wavPath := filepath.Join(dir, "fixture.wav")
	writeWAVFixture(t, wavPath, 22050, 441)

	argsFile = filepath.Join(dir, "args.txt")
	script := filepath.Join(dir, "stub-tts")
	content := "#!/bin/sh\necho \"$@\" > " + argsFile + "\ncat " + wavPath + "\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return script, argsFile
}

func TestLocalEngine_UsesConfiguredVoiceNotCatalogID(t *testing.T) {
	dir := t.TempDir()
	script, argsFile := writeStubSynthesizer(t, dir)

	engine, err := NewLocalEngine(LocalEngineConfig{
		Command: script + " --stdout -v {voice} -s {rate}",
		Voice:   "zh",
		Rate:    150,
		Target:  testTarget,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalEngine failed: %v", err)
	}

	// The catalog identifier belongs to the network engine's namespace
	// and must never reach the local command line.
	buf, err := engine.Synthesize(context.Background(), "你好", "zh-CN-XiaoxiaoNeural")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(buf.Samples) == 0 {
		t.Error("Expected decoded audio")
	}
	if buf.SampleRate != testTarget.SampleRate || buf.Channels != testTarget.Channels {
		t.Errorf("Buffer not normalized: rate=%d channels=%d", buf.SampleRate, buf.Channels)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("Stub did not record arguments: %v", err)
	}
	got := strings.TrimSpace(string(args))
	if got != "--stdout -v zh -s 150" {
		t.Errorf("Args = %q, want %q", got, "--stdout -v zh -s 150")
	}
	if strings.Contains(got, "zh-CN-XiaoxiaoNeural") {
		t.Errorf("Catalog voice ID leaked into the command line: %q", got)
	}
}

func TestNewLocalEngine_MissingBinary(t *testing.T) {
	_, err := NewLocalEngine(LocalEngineConfig{
		Command: "definitely-not-a-synthesizer-binary --stdout",
		Voice:   "zh",
		Target:  testTarget,
	}, zerolog.Nop())
	if !errors.Is(err, ErrNoLocalVoice) {
		t.Errorf("Expected ErrNoLocalVoice, got: %v", err)
	}

	if _, err := NewLocalEngine(LocalEngineConfig{Command: "", Target: testTarget}, zerolog.Nop()); !errors.Is(err, ErrNoLocalVoice) {
		t.Errorf("Expected ErrNoLocalVoice for empty command, got: %v", err)
	}
}

func TestLocalEngine_CommandFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "failing-tts")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	engine, err := NewLocalEngine(LocalEngineConfig{
		Command: script,
		Voice:   "zh",
		Target:  testTarget,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalEngine failed: %v", err)
	}

	if _, err := engine.Synthesize(context.Background(), "你好", ""); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("Expected ErrEngineUnavailable, got: %v", err)
	}
}
