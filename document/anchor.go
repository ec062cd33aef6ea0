package document

// Anchor is a position in a Buffer that follows edits made before it.
// It stays valid until rendered at or consumed, exactly once.
type Anchor struct {
	buf      *Buffer
	offset   int
	consumed bool
	newline  bool // render must start on a fresh line
}

// Buffer returns the buffer the anchor points into.
func (a *Anchor) Buffer() *Buffer {
	return a.buf
}

// Offset returns the anchor's current byte offset.
func (a *Anchor) Offset() int {
	a.buf.mu.Lock()
	defer a.buf.mu.Unlock()
	return a.offset
}

// Consumed reports whether the anchor has been used.
func (a *Anchor) Consumed() bool {
	a.buf.mu.Lock()
	defer a.buf.mu.Unlock()
	return a.consumed
}

// Offsets returns the current offsets of anchors. The anchors of each
// buffer are read under a single lock, so their offsets are consistent
// with one another.
func Offsets(anchors []*Anchor) []int {
	out := make([]int, len(anchors))
	done := make([]bool, len(anchors))
	for i, a := range anchors {
		if done[i] {
			continue
		}
		b := a.buf
		b.mu.Lock()
		for j := i; j < len(anchors); j++ {
			if anchors[j].buf == b {
				out[j] = anchors[j].offset
				done[j] = true
			}
		}
		b.mu.Unlock()
	}
	return out
}

// LineAfter returns a new anchor at the start of the line following a.
// On an unterminated last line it sits at the end of text and renders
// begin with a newline.
func LineAfter(a *Anchor) *Anchor {
	b := a.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	offset, terminated := lineEnd(b.text, b.clamp(a.offset))
	next := b.newAnchorLocked(offset)
	next.newline = !terminated
	return next
}

// Same returns a new, independent anchor at a's position.
func Same(a *Anchor) *Anchor {
	b := a.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.newAnchorLocked(a.offset)
	next.newline = a.newline
	return next
}
