// Package segment turns an incremental model token stream into
// speakable sentence-level chunks.
package segment

import (
	"strings"
)

// DefaultBreakRunes covers ASCII and CJK sentence/clause terminators.
const DefaultBreakRunes = ",.!;:，。！？：；"

// DefaultMinChunkLength is the minimum accumulated length (in bytes)
// before a terminator triggers a chunk emission. Keeps single words
// from being synthesized on their own.
const DefaultMinChunkLength = 10

// Chunk is an immutable ordered unit of speakable text.
type Chunk struct {
	Content  string
	Sequence int
	IsFinal  bool
}

// Segmenter accumulates tokens and emits a chunk whenever a break rune
// is crossed and enough text has piled up since the last emission.
// Text that never reaches the threshold is retained and prepended to
// the next chunk, so concatenating all emitted chunks plus the Flush
// output always reproduces the input exactly.
//
// Not safe for concurrent use; the token-feed path owns it.
type Segmenter struct {
	breaks  map[rune]struct{}
	minLen  int
	pending strings.Builder
	seq     int
}

// NewSegmenter builds a segmenter from a break-rune set and a minimum
// chunk length. Zero values select the defaults, so locales can extend
// the terminator set through configuration alone.
func NewSegmenter(breakRunes string, minLen int) *Segmenter {
	if breakRunes == "" {
		breakRunes = DefaultBreakRunes
	}
	if minLen <= 0 {
		minLen = DefaultMinChunkLength
	}

	breaks := make(map[rune]struct{}, len(breakRunes))
	for _, r := range breakRunes {
		breaks[r] = struct{}{}
	}

	return &Segmenter{breaks: breaks, minLen: minLen}
}

// Feed consumes one token and returns zero or more complete chunks. A
// token containing several terminators can emit several chunks, each
// judged against the length threshold independently.
func (s *Segmenter) Feed(token string) []Chunk {
	if token == "" {
		return nil
	}

	var chunks []Chunk
	for _, r := range token {
		s.pending.WriteRune(r)
		if _, ok := s.breaks[r]; !ok {
			continue
		}
		if s.pending.Len() < s.minLen {
			continue
		}
		chunks = append(chunks, s.emit(false))
	}
	return chunks
}

// Flush drains any trailing partial text as the final chunk of the
// turn. Returns nil when nothing is buffered.
func (s *Segmenter) Flush() *Chunk {
	if s.pending.Len() == 0 {
		return nil
	}
	chunk := s.emit(true)
	return &chunk
}

// Reset discards buffered text and restarts the sequence counter for
// a new turn.
func (s *Segmenter) Reset() {
	s.pending.Reset()
	s.seq = 0
}

func (s *Segmenter) emit(final bool) Chunk {
	chunk := Chunk{
		Content:  s.pending.String(),
		Sequence: s.seq,
		IsFinal:  final,
	}
	s.pending.Reset()
	s.seq++
	return chunk
}
