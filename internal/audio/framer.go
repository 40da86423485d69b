package audio

// Frames slices an utterance's samples into consecutive windows of
// exactly frameSize samples. The final window is zero-padded to
// frameSize, never truncated or dropped; downstream consumers assume
// uniform frame length.
//
// The first frame carries a start event and the last an end event. A
// buffer that fits in a single frame produces two frames: the padded
// start frame followed by a zero-length marker-only end frame, so a
// single frame never has to carry both markers.
//
// Framing is pure: the same buffer and frame size always yield the
// same frame sequence.
func Frames(buf *Buffer, frameSize int) []Frame {
	if buf == nil || frameSize <= 0 || len(buf.Samples) == 0 {
		return nil
	}

	count := (len(buf.Samples) + frameSize - 1) / frameSize
	frames := make([]Frame, 0, count+1)

	for i := 0; i < count; i++ {
		window := make([]int16, frameSize)
		copy(window, buf.Samples[i*frameSize:min(len(buf.Samples), (i+1)*frameSize)])
		frames = append(frames, Frame{Samples: window})
	}

	frames[0].Event = &Event{Status: EventStart}
	if count == 1 {
		frames = append(frames, Frame{Samples: []int16{}, Event: &Event{Status: EventEnd}})
	} else {
		frames[count-1].Event = &Event{Status: EventEnd}
	}

	return frames
}
