// Package pool implements a realtime-safe, single-size-class free-list
// allocator. A Pool hands out fixed-size blocks to a realtime caller via
// Allocate/Deallocate, which never call into the OS allocator and never
// block on a contended lock, and is topped up or drained from a separate
// non-realtime Replenish path.
//
// Thread-safe pools coordinate the two roles with a dual-list handoff: the
// realtime path owns freeList outright, the replenisher owns pendingList
// under mutex, and a mirror counter lets the replenisher reason about free
// list size without ever touching it directly. The realtime path only ever
// touches the mutex via TryLock, so it can never be made to wait.
package pool

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/nedko/rtsafe/internal/rtlog"
)

// linkSize is the width of the forward-link word blockList hides in each
// free block's own memory. Every block requested from the block source is
// padded up to at least this many bytes so there is always room for it,
// even when payloadSize itself is smaller — the pool still only promises
// the caller payloadSize usable bytes; the rest is unused, inaccessible
// slack once a block is handed out via Allocate.
var linkSize = int(unsafe.Sizeof(uintptr(0)))

// Pool is a fixed-size-class free-list allocator. See the package doc for
// the realtime/non-realtime split.
type Pool struct {
	payloadSize int
	allocSize   int // max(payloadSize, linkSize); what's actually requested per block
	minFree     int
	maxFree     int

	inUse    atomic.Int64
	freeList *blockList // realtime-owned

	threadSafe bool

	// Guards pendingList and mirrorCount. Touched from the realtime path
	// only via TryLock; touched from Replenish via a blocking Lock.
	mu          sync.Mutex
	pendingList *blockList
	mirrorCount int

	blockSource  BlockSource
	blockRelease BlockRelease
}

// New allocates the control block, initializes every counter to zero and
// both lists to empty, then performs one fill pass to reach minFree before
// returning. Unlike a steady-state Replenish, this initial fill writes
// directly into freeList (bypassing pendingList) because construction runs
// before any realtime caller or replenisher goroutine exists to race with
// it; see the package-level tests for the water-mark values this produces.
//
// New fails if minFree is not strictly less than maxFree, or if the block
// source cannot supply minFree blocks.
func New(payloadSize, minFree, maxFree int, threadSafe bool, opts ...Option) (*Pool, error) {
	if !(minFree < maxFree) {
		return nil, ErrInvalidWaterMarks
	}

	allocSize := payloadSize
	if allocSize < linkSize {
		allocSize = linkSize
	}

	p := &Pool{
		payloadSize:  payloadSize,
		allocSize:    allocSize,
		minFree:      minFree,
		maxFree:      maxFree,
		threadSafe:   threadSafe,
		freeList:     newBlockList(),
		blockSource:  defaultBlockSource,
		blockRelease: defaultBlockRelease,
	}
	if threadSafe {
		p.pendingList = newBlockList()
	}
	for _, opt := range opts {
		opt(p)
	}

	for p.freeList.Len() < p.minFree {
		blk, ok := p.blockSource(p.allocSize)
		if !ok {
			break
		}
		p.freeList.PushBack(blk)
	}
	if p.freeList.Len() < p.minFree {
		p.drainLocked()
		return nil, ErrOutOfMemory
	}
	if p.threadSafe {
		p.mirrorCount = p.freeList.Len()
	}

	rtlog.Debug("pool.New called", "payload_size", payloadSize, "min_free", minFree, "max_free", maxFree, "thread_safe", threadSafe)
	return p, nil
}

// Destroy requires InUse() == 0. It frees every block on freeList and
// pendingList, then the control block becomes eligible for collection.
func (p *Pool) Destroy() error {
	if p.inUse.Load() != 0 {
		return ErrPoolNotEmpty
	}
	if p.threadSafe {
		p.mu.Lock()
		p.drainLocked()
		p.mu.Unlock()
	} else {
		p.drainLocked()
	}
	rtlog.Debug("pool.Destroy called")
	return nil
}

func (p *Pool) drainLocked() {
	for {
		blk, ok := p.freeList.PopFront()
		if !ok {
			break
		}
		p.blockRelease(blk)
	}
	if p.pendingList != nil {
		for {
			blk, ok := p.pendingList.PopFront()
			if !ok {
				break
			}
			p.blockRelease(blk)
		}
	}
}

// Replenish is the non-realtime top-up/drain procedure. It may block on
// the mutex and may call into the OS allocator; it must never run on the
// realtime thread.
//
// In thread-safe mode it only ever stages blocks into pendingList or drains
// pendingList back to the OS; it never touches freeList, so the realtime
// path's view of freeList stays consistent without taking any lock in its
// own critical section. In non-thread-safe mode there is no pendingList, so
// it works directly against freeList with the same water-mark logic.
func (p *Pool) Replenish() {
	if !p.threadSafe {
		for p.freeList.Len() < p.minFree {
			blk, ok := p.blockSource(p.allocSize)
			if !ok {
				rtlog.Debug("pool.Replenish: block source exhausted")
				return
			}
			p.freeList.PushBack(blk)
		}
		for p.freeList.Len() > p.maxFree {
			blk, ok := p.freeList.PopFront()
			if !ok {
				break
			}
			p.blockRelease(blk)
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.mirrorCount
	for c < p.minFree {
		blk, ok := p.blockSource(p.allocSize)
		if !ok {
			rtlog.Debug("pool.Replenish: block source exhausted")
			break
		}
		p.pendingList.PushBack(blk)
		c++
	}
	for c > p.maxFree {
		blk, ok := p.pendingList.PopFront()
		if !ok {
			break
		}
		p.blockRelease(blk)
		c--
	}
	p.mirrorCount = c
}

// Allocate never calls the OS allocator and never blocks on mu; it may
// return nil if freeList is empty. The detach from freeList happens
// unconditionally and is the only part of this call the caller depends on;
// the opportunistic TryLock section below it moves staged blocks from
// pendingList into freeList (up to minFree), refreshes mirrorCount, and is
// skipped entirely if TryLock fails.
func (p *Pool) Allocate() unsafe.Pointer {
	rtlog.Debug("pool.Allocate called")

	blk, ok := p.freeList.PopFront()
	if !ok {
		rtlog.Debug("pool.Allocate: free list exhausted")
		return nil
	}
	p.inUse.Add(1)

	if p.threadSafe && p.mu.TryLock() {
		for p.freeList.Len() < p.minFree {
			pending, ok := p.pendingList.PopFront()
			if !ok {
				break
			}
			p.freeList.PushBack(pending)
		}
		p.mirrorCount = p.freeList.Len()
		p.mu.Unlock()
	}

	rtlog.Debug("pool.Allocate returning pointer")
	return blk
}

// Deallocate never calls the OS allocator and never blocks on mu; it cannot
// fail.
func (p *Pool) Deallocate(b unsafe.Pointer) {
	rtlog.Debug("pool.Deallocate called")

	p.freeList.PushBack(b)
	p.inUse.Add(-1)

	if p.threadSafe && p.mu.TryLock() {
		for p.freeList.Len() > p.maxFree {
			blk, ok := p.freeList.PopFront()
			if !ok {
				break
			}
			p.pendingList.PushBack(blk)
		}
		p.mirrorCount = p.freeList.Len()
		p.mu.Unlock()
	}
}

// AllocateBlocking repeatedly Replenishes and Allocates until it succeeds.
// It may loop indefinitely and is intended for non-realtime startup paths
// only, never for the realtime thread.
func (p *Pool) AllocateBlocking() unsafe.Pointer {
	for {
		p.Replenish()
		if blk := p.Allocate(); blk != nil {
			return blk
		}
	}
}

// PayloadSize returns the number of bytes available per block.
func (p *Pool) PayloadSize() int { return p.payloadSize }

// MinFree returns the low water mark.
func (p *Pool) MinFree() int { return p.minFree }

// MaxFree returns the high water mark.
func (p *Pool) MaxFree() int { return p.maxFree }

// InUse returns the number of blocks currently handed out.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// FreeCount returns the length of freeList.
func (p *Pool) FreeCount() int { return p.freeList.Len() }

// PendingCount returns the length of pendingList, or 0 for a
// non-thread-safe pool.
func (p *Pool) PendingCount() int {
	if p.pendingList == nil {
		return 0
	}
	return p.pendingList.Len()
}

// MirrorCount returns the replenisher's last-observed snapshot of
// FreeCount, or 0 for a non-thread-safe pool.
func (p *Pool) MirrorCount() int {
	if !p.threadSafe {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mirrorCount
}

// ThreadSafe reports whether this pool uses the dual-list handoff.
func (p *Pool) ThreadSafe() bool { return p.threadSafe }
