package pool

import "unsafe"

// blockList is an intrusive singly-linked free list: each entry's forward
// link lives in the first pointer-sized word of the block's own memory
// rather than in a separately allocated node, the technique the Go
// runtime's own fixed-size allocator (mfixalloc) uses for exactly this
// reason. Push and pop never allocate, since there is no node to create or
// release — the list costs nothing beyond the blocks it already holds.
type blockList struct {
	head unsafe.Pointer
	n    int
}

func newBlockList() *blockList {
	return &blockList{}
}

func (b *blockList) Len() int {
	return b.n
}

// PushBack adds p to the list by stashing the current head in p's first
// word and making p the new head. Order doesn't matter for a free list —
// this is a push-to-front, O(1) and allocation-free; the name is kept for
// parity with the pool's allocator-facing call sites.
func (b *blockList) PushBack(p unsafe.Pointer) {
	*(*unsafe.Pointer)(p) = b.head
	b.head = p
	b.n++
}

// PopFront removes and returns the current head, reading the next link back
// out of its first word.
func (b *blockList) PopFront() (unsafe.Pointer, bool) {
	p := b.head
	if p == nil {
		return nil, false
	}
	b.head = *(*unsafe.Pointer)(p)
	b.n--
	return p, true
}
