// Package peek provides a two-item lookahead wrapper over a lazy sequence.
//
// The wrapper lets callers inspect the next two upcoming items of a
// pull-based stream without consuming either, which is what the startup
// aligner and the free-running merge need to make closest-frame decisions.
package peek

// Source is a lazy, pull-based sequence. Next returns the next item and
// true, or the zero value and false once the sequence is exhausted. A
// Source is asked for items strictly in order and exactly once each.
type Source[T any] interface {
	Next() (T, bool)
}

// Cursor buffers at most two upcoming items of a Source. Nothing beyond
// the two lookahead slots is ever buffered.
type Cursor[T any] struct {
	src  Source[T]
	cur  *T
	next *T
}

// New wraps src in a Cursor, eagerly fetching the first two items so that
// Peek1 and Peek2 are immediately answerable.
func New[T any](src Source[T]) *Cursor[T] {
	c := &Cursor[T]{src: src}
	c.cur = fetch(src)
	c.next = fetch(src)
	return c
}

func fetch[T any](src Source[T]) *T {
	v, ok := src.Next()
	if !ok {
		return nil
	}
	return &v
}

// Peek1 returns the first upcoming item without consuming it, or nil when
// the sequence is exhausted.
func (c *Cursor[T]) Peek1() *T { return c.cur }

// Peek2 returns the second upcoming item without consuming anything, or
// nil when fewer than two items remain.
func (c *Cursor[T]) Peek2() *T { return c.next }

// Next consumes and returns the first upcoming item, shifting the second
// into its place and lazily fetching a replacement. It returns false when
// the cursor is exhausted. Cursor itself satisfies Source, so cursors can
// be re-wrapped if ever needed.
func (c *Cursor[T]) Next() (T, bool) {
	if c.cur == nil {
		var zero T
		return zero, false
	}
	out := *c.cur
	c.cur = c.next
	if c.cur != nil {
		c.next = fetch(c.src)
	} else {
		c.next = nil
	}
	return out, true
}
