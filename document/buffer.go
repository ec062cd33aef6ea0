// Package document is the text container URL previews are rendered into.
//
// A Buffer holds mutable text plus the anchors and read-only spans that track
// positions in it. Anchors survive insertions made before them, so several
// in-flight previews can each render at their own spot regardless of the
// order in which they complete.
package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrReadOnly is returned when an edit touches rendered preview text.
	ErrReadOnly = errors.New("text is read-only")

	// ErrConsumed is returned when an anchor is used after rendering.
	ErrConsumed = errors.New("anchor already consumed")

	// ErrForeignAnchor is returned when an anchor belongs to another buffer.
	ErrForeignAnchor = errors.New("anchor belongs to a different buffer")
)

// HookFunc runs after a named event on a buffer.
// It is called without the buffer lock held.
type HookFunc func(b *Buffer)

// Inserter is handed to renderers to insert text at the render position.
// Each call appends after the previously inserted text.
// An Inserter is only valid for the duration of the render call and must not
// call back into the Buffer.
type Inserter interface {
	Insert(text string)
	Offset() int
}

type span struct {
	start, end int
}

// Buffer is a named, thread-safe text container.
type Buffer struct {
	mu       sync.Mutex
	name     string
	text     []byte
	anchors  map[*Anchor]struct{}
	readOnly []span
	hooks    map[string][]HookFunc
}

// New creates a buffer holding text.
func New(name, text string) *Buffer {
	return &Buffer{
		name:    name,
		text:    []byte(text),
		anchors: make(map[*Anchor]struct{}),
		hooks:   make(map[string][]HookFunc),
	}
}

// Name returns the buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// String returns the current text.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.text)
}

// Len returns the text length in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.text)
}

// Slice returns text[start:end], clamped to the buffer.
func (b *Buffer) Slice(start, end int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	start, end = b.clamp(start), b.clamp(end)
	if start >= end {
		return ""
	}
	return string(b.text[start:end])
}

// NewAnchor captures a stable handle to offset.
func (b *Buffer) NewAnchor(offset int) *Anchor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newAnchorLocked(offset)
}

// AnchorAtEnd captures a handle to the current end of text.
func (b *Buffer) AnchorAtEnd() *Anchor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newAnchorLocked(len(b.text))
}

func (b *Buffer) newAnchorLocked(offset int) *Anchor {
	a := &Anchor{buf: b, offset: b.clamp(offset)}
	b.anchors[a] = struct{}{}
	return a
}

// LiveAnchors returns the number of anchors not yet consumed.
func (b *Buffer) LiveAnchors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.anchors)
}

// Edit replaces text[start:end] with text. Edits touching a read-only span
// fail with ErrReadOnly; inserting at a span boundary is allowed.
func (b *Buffer) Edit(start, end int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	start, end = b.clamp(start), b.clamp(end)
	if start > end {
		return fmt.Errorf("invalid range [%d, %d)", start, end)
	}
	for _, s := range b.readOnly {
		if start == end {
			if start > s.start && start < s.end {
				return ErrReadOnly
			}
			continue
		}
		if start < s.end && end > s.start {
			return ErrReadOnly
		}
	}

	b.replaceLocked(start, end, text)
	return nil
}

// Insert inserts text at offset. See Edit.
func (b *Buffer) Insert(offset int, text string) error {
	return b.Edit(offset, offset, text)
}

// Render inserts at the anchor's position (or at the end of the buffer when
// at is nil) by calling fn with an Inserter. Everything inserted becomes one
// read-only span. The anchor is consumed, whether fn succeeds or not.
func (b *Buffer) Render(at *Anchor, fn func(ins Inserter) error) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	offset := len(b.text)
	newline := at == nil && offset > 0 && b.text[offset-1] != '\n'
	if at != nil {
		if at.buf != b {
			return ErrForeignAnchor
		}
		if at.consumed {
			return ErrConsumed
		}
		offset = at.offset
		newline = at.newline && offset > 0 && b.text[offset-1] != '\n'
		b.consumeLocked(at)
	}

	ins := &inserter{buf: b, offset: offset, start: offset}
	if newline {
		ins.Insert("\n")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
		if ins.offset > ins.start {
			b.markReadOnlyLocked(ins.start, ins.offset)
		}
	}()
	return fn(ins)
}

// InsertReadOnly renders a literal string. See Render.
func (b *Buffer) InsertReadOnly(at *Anchor, text string) error {
	return b.Render(at, func(ins Inserter) error {
		ins.Insert(text)
		return nil
	})
}

// ReadOnly reports whether offset lies inside rendered text.
func (b *Buffer) ReadOnly(offset int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.readOnly {
		if offset >= s.start && offset < s.end {
			return true
		}
	}
	return false
}

// AddHook registers fn under name.
func (b *Buffer) AddHook(name string, fn HookFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[name] = append(b.hooks[name], fn)
}

// RunHook calls every function registered under name, in order.
func (b *Buffer) RunHook(name string) {
	b.mu.Lock()
	hooks := append([]HookFunc(nil), b.hooks[name]...)
	b.mu.Unlock()

	for _, fn := range hooks {
		fn(b)
	}
}

// Consume detaches an anchor without rendering and returns its final offset.
func (b *Buffer) Consume(a *Anchor) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a.buf != b {
		return 0, ErrForeignAnchor
	}
	if a.consumed {
		return 0, ErrConsumed
	}
	b.consumeLocked(a)
	return a.offset, nil
}

func (b *Buffer) consumeLocked(a *Anchor) {
	a.consumed = true
	delete(b.anchors, a)
}

// replaceLocked applies an edit and moves anchors and spans to follow it.
func (b *Buffer) replaceLocked(start, end int, text string) {
	tail := append([]byte(text), b.text[end:]...)
	b.text = append(b.text[:start], tail...)

	for a := range b.anchors {
		a.offset = transformOffset(a.offset, start, end, len(text))
	}
	for i := range b.readOnly {
		s := &b.readOnly[i]
		// Span boundaries stick so text inserted next to a span stays editable.
		s.start = transformBoundary(s.start, start, end, len(text), false)
		s.end = transformBoundary(s.end, start, end, len(text), true)
	}
}

func (b *Buffer) markReadOnlyLocked(start, end int) {
	b.readOnly = append(b.readOnly, span{start: start, end: end})
	sort.Slice(b.readOnly, func(i, j int) bool {
		return b.readOnly[i].start < b.readOnly[j].start
	})
}

func (b *Buffer) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(b.text) {
		return len(b.text)
	}
	return offset
}

// transformOffset moves an anchor offset across the replacement of
// [start, end) by n bytes.
//
//   - edit entirely before offset: shift by the length delta
//   - insertion exactly at offset: move past the inserted text
//   - edit starting after offset: unchanged
//   - edit spanning offset: move to end of the new text
func transformOffset(offset, start, end, n int) int {
	if start == end && start == offset {
		return offset + n
	}
	if end <= offset {
		return offset - (end - start) + n
	}
	if start >= offset {
		return offset
	}
	return start + n
}

// transformBoundary is transformOffset for span edges. A sticky boundary
// stays put when text is inserted exactly on it.
func transformBoundary(offset, start, end, n int, sticky bool) int {
	if start == end && start == offset {
		if sticky {
			return offset
		}
		return offset + n
	}
	return transformOffset(offset, start, end, n)
}

type inserter struct {
	buf    *Buffer
	start  int
	offset int
}

func (i *inserter) Insert(text string) {
	if text == "" {
		return
	}
	i.buf.replaceLocked(i.offset, i.offset, text)
	i.offset += len(text)
}

func (i *inserter) Offset() int {
	return i.offset
}

// lineEnd returns the offset just past the newline ending the line that
// contains offset, or len(text) when the line is unterminated.
func lineEnd(text []byte, offset int) (int, bool) {
	idx := strings.IndexByte(string(text[offset:]), '\n')
	if idx == -1 {
		return len(text), false
	}
	return offset + idx + 1, true
}
