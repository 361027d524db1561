package pool

import "errors"

var (
	// ErrInvalidWaterMarks is returned by New when minFree is not strictly
	// less than maxFree.
	ErrInvalidWaterMarks = errors.New("pool: min_free must be less than max_free")

	// ErrOutOfMemory is returned by New when the block source could not
	// supply min_free blocks during the initial fill. It is never returned
	// from Replenish, which absorbs the same failure silently and retries
	// on its next invocation.
	ErrOutOfMemory = errors.New("pool: block source could not reach min_free during initial fill")

	// ErrPoolNotEmpty is returned by Destroy when blocks are still handed
	// out. Destroying such a pool is a programming error.
	ErrPoolNotEmpty = errors.New("pool: destroy called with blocks still in use")
)
