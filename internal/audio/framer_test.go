package audio

import (
	"testing"
)

func makeBuffer(n int) *Buffer {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i%200 - 100)
	}
	return &Buffer{Samples: samples, SampleRate: 16000, Channels: 1}
}

func TestFrames_ExactMultiple(t *testing.T) {
	buf := makeBuffer(960) // 3 frames of 320
	frames := Frames(buf, 320)

	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}

	for i, f := range frames {
		if len(f.Samples) != 320 {
			t.Errorf("Frame %d has length %d, expected 320", i, len(f.Samples))
		}
	}

	if frames[0].Event == nil || frames[0].Event.Status != EventStart {
		t.Error("First frame should carry a start event")
	}
	if frames[2].Event == nil || frames[2].Event.Status != EventEnd {
		t.Error("Last frame should carry an end event")
	}
	if frames[1].Event != nil {
		t.Error("Interior frame should carry no event")
	}
}

func TestFrames_PadsFinalWindow(t *testing.T) {
	buf := makeBuffer(700) // 2 full frames + 60 samples
	frames := Frames(buf, 320)

	if len(frames) != 3 {
		t.Fatalf("Expected ceil(700/320)=3 frames, got %d", len(frames))
	}

	last := frames[2]
	if len(last.Samples) != 320 {
		t.Fatalf("Final frame should be padded to 320 samples, got %d", len(last.Samples))
	}
	for i := 60; i < 320; i++ {
		if last.Samples[i] != 0 {
			t.Fatalf("Expected zero padding at sample %d, got %d", i, last.Samples[i])
		}
	}
	for i := 0; i < 60; i++ {
		if last.Samples[i] != buf.Samples[640+i] {
			t.Fatalf("Final frame sample %d does not match source", i)
		}
	}
}

func TestFrames_ShortBufferEmitsTwoFrames(t *testing.T) {
	buf := makeBuffer(100)
	frames := Frames(buf, 320)

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames for a sub-frame buffer, got %d", len(frames))
	}

	if frames[0].Event == nil || frames[0].Event.Status != EventStart {
		t.Error("First frame should carry the start event")
	}
	if len(frames[0].Samples) != 320 {
		t.Errorf("First frame should be padded to 320 samples, got %d", len(frames[0].Samples))
	}

	if frames[1].Event == nil || frames[1].Event.Status != EventEnd {
		t.Error("Second frame should carry the end event")
	}
	if len(frames[1].Samples) != 0 {
		t.Errorf("End marker frame should carry no samples, got %d", len(frames[1].Samples))
	}
}

func TestFrames_SingleFullFrame(t *testing.T) {
	// Exactly one frame of audio still uses the marker-frame rule.
	buf := makeBuffer(320)
	frames := Frames(buf, 320)

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if frames[0].Event.Status != EventStart || frames[1].Event.Status != EventEnd {
		t.Error("Expected start frame followed by end marker frame")
	}
}

func TestFrames_EventCounts(t *testing.T) {
	for _, n := range []int{1, 319, 320, 321, 960, 10007} {
		frames := Frames(makeBuffer(n), 320)

		starts, ends := 0, 0
		for _, f := range frames {
			if f.Event == nil {
				continue
			}
			switch f.Event.Status {
			case EventStart:
				starts++
			case EventEnd:
				ends++
			}
		}
		if starts != 1 || ends != 1 {
			t.Errorf("n=%d: expected exactly one start and one end, got %d/%d", n, starts, ends)
		}
	}
}

func TestFrames_Idempotent(t *testing.T) {
	buf := makeBuffer(1234)

	a := Frames(buf, 320)
	b := Frames(buf, 320)

	if len(a) != len(b) {
		t.Fatalf("Frame counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if len(a[i].Samples) != len(b[i].Samples) {
			t.Fatalf("Frame %d lengths differ", i)
		}
		for j := range a[i].Samples {
			if a[i].Samples[j] != b[i].Samples[j] {
				t.Fatalf("Frame %d sample %d differs", i, j)
			}
		}
	}
}

func TestFrames_EmptyBuffer(t *testing.T) {
	if frames := Frames(&Buffer{SampleRate: 16000, Channels: 1}, 320); frames != nil {
		t.Errorf("Expected no frames for empty buffer, got %d", len(frames))
	}
	if frames := Frames(nil, 320); frames != nil {
		t.Error("Expected no frames for nil buffer")
	}
	if frames := Frames(makeBuffer(10), 0); frames != nil {
		t.Error("Expected no frames for non-positive frame size")
	}
}
