package audio

// EventStatus marks an utterance boundary on a frame. The downstream
// renderer uses these to trigger lip-sync animation start/stop.
type EventStatus string

const (
	EventStart EventStatus = "start"
	EventEnd   EventStatus = "end"
)

// Event is an optional boundary marker attached to a frame.
type Event struct {
	Status EventStatus
}

// Buffer holds one utterance of normalized PCM audio.
// After normalization SampleRate and Channels always match the
// deployment-wide target format.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the playback duration of the buffer in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 || b.Channels == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate*b.Channels)
}

// Frame is a fixed-size slice of an utterance's samples. Exactly one
// frame per utterance carries a start event and exactly one carries an
// end event; interior frames carry none.
type Frame struct {
	Samples []int16
	Event   *Event
}
