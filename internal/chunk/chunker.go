// Package chunk splits extracted text into overlapping fixed-size windows.
package chunk

import "strings"

// Chunker splits text into overlapping character windows. It is a pure
// function of its inputs: the same (text, chunkChars, overlap) always yields
// the same chunk sequence, which is what lets retrieval re-derive chunk text
// from the source file instead of storing it.
type Chunker struct {
	chunkChars int
	overlap    int
}

// NewChunker creates a chunker with the given window size and overlap, both
// in runes. chunkChars must be positive; overlap may be any non-negative
// value (an overlap >= chunkChars still makes forward progress, see Split).
func NewChunker(chunkChars, overlap int) *Chunker {
	return &Chunker{chunkChars: chunkChars, overlap: overlap}
}

// Split returns the ordered chunk sequence for text. The window advances by
// chunkChars-overlap runes each step, clamped to at least 1 so the loop
// terminates even when overlap >= chunkChars. The final partial window is
// included. Each window is trimmed of surrounding whitespace after slicing;
// windows that trim to empty are dropped, so a chunk's ordinal is its
// position in the returned (retained) sequence, dense 0..n-1.
func (c *Chunker) Split(text string) []string {
	if c.chunkChars <= 0 {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	step := c.chunkChars - c.overlap
	if step < 1 {
		step = 1
	}
	var chunks []string
	for i := 0; i < n; i += step {
		j := i + c.chunkChars
		if j > n {
			j = n
		}
		piece := strings.TrimSpace(string(runes[i:j]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		if j >= n {
			break
		}
	}
	return chunks
}

// ChunkChars returns the configured window size in runes.
func (c *Chunker) ChunkChars() int { return c.chunkChars }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }
