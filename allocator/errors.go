package allocator

import "errors"

// ErrTooManySizeClasses is returned by New when the requested max payload
// would need more size classes than the platform's word size allows —
// a defensive bound; callers who hit it almost certainly passed the wrong
// maxPayload.
var ErrTooManySizeClasses = errors.New("allocator: size class count exceeds platform word size")
