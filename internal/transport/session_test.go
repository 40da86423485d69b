package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/avatarlabs/speech-gateway/internal/config"
	"github.com/avatarlabs/speech-gateway/internal/llm"
	"github.com/avatarlabs/speech-gateway/internal/synth"
	"github.com/avatarlabs/speech-gateway/internal/voice"
)

// blockingStreamer hands each turn's context to the test and blocks
// until that context is cancelled.
type blockingStreamer struct {
	contexts chan context.Context
	returned chan struct{}
}

func newBlockingStreamer() *blockingStreamer {
	return &blockingStreamer{
		contexts: make(chan context.Context, 4),
		returned: make(chan struct{}, 4),
	}
}

func (b *blockingStreamer) StreamTurn(ctx context.Context, text string, sink llm.TokenSink) error {
	b.contexts <- ctx
	<-ctx.Done()
	b.returned <- struct{}{}
	return ctx.Err()
}

func newSessionTestServer(t *testing.T, streamer TurnStreamer) *websocket.Conn {
	t.Helper()

	target := synth.TargetFormat{SampleRate: 16000, Channels: 1}
	synthesizer, err := synth.NewResilient(nil, synth.NewMockEngine("fallback", target), synth.ResilientConfig{
		FallbackOnly: true,
		Target:       target,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResilient failed: %v", err)
	}

	catalog, err := voice.LoadCatalog("", "zh-CN-XiaoxiaoNeural", zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	cfg := &config.Config{
		TargetSampleRate: 16000,
		TargetChannels:   1,
		FrameSize:        320,
		ChunkMinLength:   10,
		ChunkQueueDepth:  16,
		FrameRingSize:    64,
		OutputEncoding:   "pcm",
	}

	srv := httptest.NewServer(HandleAvatarWS(cfg, synthesizer, catalog, streamer))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// The ready message arrives first.
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read ready failed: %v", err)
	}
	msgType, _, err := Unmarshal(data)
	if err != nil || msgType != TypeReady {
		t.Fatalf("Expected ready message, got type=%q err=%v", msgType, err)
	}

	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType MessageType, payload interface{}) {
	t.Helper()
	data, err := Marshal(msgType, payload)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func recvContext(t *testing.T, streamer *blockingStreamer) context.Context {
	t.Helper()
	select {
	case ctx := <-streamer.contexts:
		return ctx
	case <-time.After(2 * time.Second):
		t.Fatal("Turn did not start")
		return nil
	}
}

func TestSession_InterruptCancelsTurn(t *testing.T) {
	streamer := newBlockingStreamer()
	conn := newSessionTestServer(t, streamer)

	sendEnvelope(t, conn, TypeAsk, AskPayload{Text: "第一个问题"})
	ctx := recvContext(t, streamer)

	sendEnvelope(t, conn, TypeInterrupt, nil)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Interrupt did not cancel the turn")
	}
}

func TestSession_InterruptAfterSupersededTurn(t *testing.T) {
	streamer := newBlockingStreamer()
	conn := newSessionTestServer(t, streamer)

	// First turn starts and blocks.
	sendEnvelope(t, conn, TypeAsk, AskPayload{Text: "第一个问题"})
	recvContext(t, streamer)

	// Second ask supersedes the first: turn one's context is cancelled
	// and its goroutine finishes.
	sendEnvelope(t, conn, TypeAsk, AskPayload{Text: "第二个问题"})
	ctx2 := recvContext(t, streamer)

	select {
	case <-streamer.returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Superseded turn did not finish")
	}

	// Let the finished goroutine's cleanup run; it must not disarm the
	// live turn's cancel func.
	time.Sleep(100 * time.Millisecond)

	sendEnvelope(t, conn, TypeInterrupt, nil)

	select {
	case <-ctx2.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Interrupt left the second turn running")
	}
}

func TestSession_SecondAskSupersedesFirst(t *testing.T) {
	streamer := newBlockingStreamer()
	conn := newSessionTestServer(t, streamer)

	sendEnvelope(t, conn, TypeAsk, AskPayload{Text: "第一个问题"})
	ctx1 := recvContext(t, streamer)

	sendEnvelope(t, conn, TypeAsk, AskPayload{Text: "第二个问题"})

	select {
	case <-ctx1.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("New ask did not cancel the turn in progress")
	}
}
