// Package allocator implements the size-class dispatcher that sits on top
// of pool.Pool: it owns a geometric family of pools covering a range of
// request sizes, routes each Allocate(size) to the smallest pool that fits,
// and records the originating pool in a hidden header so Deallocate needs
// only the caller's pointer.
package allocator

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/nedko/rtsafe/internal/rtlog"
	"github.com/nedko/rtsafe/pool"
)

// headerSize is the width of the owning-pool back-reference stamped at the
// front of every block the dispatcher hands out. A pointer is 8 bytes on a
// 64-bit platform.
var headerSize = int(unsafe.Sizeof(uintptr(0)))

// SizedAllocator routes variable-size requests to the pool.Pool whose
// payload is the smallest that still fits, and hides that routing decision
// in a per-block header.
type SizedAllocator struct {
	pools []*pool.Pool
	base  int
	slack int
}

// New creates one pool.Pool per size class needed to cover maxPayload,
// geometrically doubling from base (default DefaultBaseSize), each biased
// down by slack (default DefaultSlack). preallocMin/preallocMax and
// threadSafe are forwarded to every pool.Pool unchanged.
//
// The class count is chosen so the *largest* class's payload, not merely
// some power-of-two threshold, actually covers maxPayload plus its header:
// the smallest n with base*2^(n-1) >= maxPayload+slack+headerSize, giving n
// pools indexed 0..n-1. (A literal reading of base*2^N >= maxPayload+slack
// with N pools indexed 0..N-1 would leave the top class one doubling short
// of maxPayload, and omitting headerSize from the target would leave it
// short by the header even after that fix — Allocate adds headerSize to
// every request before routing it, so the target has to account for that
// too. This keeps the same doubling family and the same per-class payload
// formula.)
//
// On any pool-creation failure, already-created pools are destroyed and
// New returns that error.
func New(maxPayload, preallocMin, preallocMax int, threadSafe bool, opts ...Option) (*SizedAllocator, error) {
	cfg := &config{base: DefaultBaseSize, slack: DefaultSlack}
	for _, o := range opts {
		o(cfg)
	}

	target := maxPayload + cfg.slack + headerSize
	n := 1
	for cfg.base<<uint(n-1) < target {
		n++
		if n > bits.UintSize {
			return nil, ErrTooManySizeClasses
		}
	}

	a := &SizedAllocator{base: cfg.base, slack: cfg.slack}
	size := cfg.base
	for i := 0; i < n; i++ {
		payload := size - cfg.slack
		p, err := pool.New(payload, preallocMin, preallocMax, threadSafe)
		if err != nil {
			for _, created := range a.pools {
				created.Destroy()
			}
			return nil, fmt.Errorf("allocator: creating size class %d (payload %d): %w", i, payload, err)
		}
		a.pools = append(a.pools, p)
		size <<= 1
	}

	rtlog.Debug("allocator.New called", "max_payload", maxPayload, "classes", n, "base", cfg.base, "slack", cfg.slack)
	return a, nil
}

// Destroy destroys every pool, then the dispatcher. Every pool must have
// InUse() == 0.
func (a *SizedAllocator) Destroy() error {
	for _, p := range a.pools {
		if err := p.Destroy(); err != nil {
			return err
		}
	}
	return nil
}

// Allocate adds headerSize to size, finds the smallest pool whose payload
// is at least the adjusted request, allocates from it, stamps the pool
// back-reference into the first headerSize bytes, and returns a pointer
// just past the header. It returns nil if size exceeds the largest pool or
// if the chosen pool's free list is empty; it never falls through to a
// larger class on the latter, since the larger class is sized separately
// and the caller will eventually free to whichever class was stamped.
func (a *SizedAllocator) Allocate(size int) unsafe.Pointer {
	rtlog.Debug("allocator.Allocate called", "size", size)

	adjusted := size + headerSize
	for i, p := range a.pools {
		if adjusted > p.PayloadSize() {
			continue
		}

		rtlog.Debug("allocator: using chunk", "class", i, "payload_size", p.PayloadSize())
		block := p.Allocate()
		if block == nil {
			rtlog.Debug("allocator.Allocate: pool exhausted", "class", i)
			return nil
		}

		*(*unsafe.Pointer)(block) = unsafe.Pointer(p)
		user := unsafe.Pointer(uintptr(block) + uintptr(headerSize))
		rtlog.Debug("allocator.Allocate returning pointer")
		return user
	}

	rtlog.Warn("allocator: data size too big", "size", size)
	return nil
}

// Deallocate reads the pool back-reference from the headerSize bytes
// immediately preceding b and returns the block to that pool. No allocator
// handle is needed.
func (a *SizedAllocator) Deallocate(b unsafe.Pointer) {
	rtlog.Debug("allocator.Deallocate called")

	header := unsafe.Pointer(uintptr(b) - uintptr(headerSize))
	ownerPtr := *(*unsafe.Pointer)(header)
	if ownerPtr == nil {
		rtlog.Assertf("allocator: deallocate called with a corrupt or already-freed header")
	}

	owner := (*pool.Pool)(ownerPtr)
	owner.Deallocate(header)
}

// Replenish invokes Replenish on every pool.
func (a *SizedAllocator) Replenish() {
	for _, p := range a.pools {
		p.Replenish()
	}
}

// Classes returns the number of size classes this dispatcher owns.
func (a *SizedAllocator) Classes() int { return len(a.pools) }

// PayloadSize returns the usable payload of size class i, which includes
// the dispatcher header. Exposed mainly for tests that want to probe
// routing boundaries directly.
func (a *SizedAllocator) PayloadSize(i int) int { return a.pools[i].PayloadSize() }
