// Package replacer implements the buffer pool's victim-selection
// policy as a small capability set (Victim/Pin/Unpin/Size) so the
// buffer pool manager never depends on a concrete algorithm. LRU is
// the policy the pool is specified against; Clock is kept alongside it
// only to demonstrate that the interface really is substitutable.
package replacer

// FrameID indexes into the buffer pool's frame array.
type FrameID int

// Replacer tracks the set of resident-but-unpinned frames and picks an
// eviction victim among them. All methods are safe for concurrent use.
type Replacer interface {
	// Victim removes and returns the least desirable frame to evict.
	// ok is false iff Size() == 0.
	Victim() (id FrameID, ok bool)

	// Pin removes frameID from the tracked set, if present. No-op if
	// frameID isn't tracked.
	Pin(frameID FrameID)

	// Unpin adds frameID to the tracked set if it isn't already
	// present. Idempotent: unpinning an already-tracked frame is a
	// no-op, per the buffer pool's "duplicate unpin calls must be
	// safe" contract.
	Unpin(frameID FrameID)

	// Size returns the number of frames currently tracked (evictable).
	Size() int
}
