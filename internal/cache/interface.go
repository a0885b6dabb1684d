package cache

import (
	"context"
	"fmt"
)

// TileKey identifies a tile: the producer that computes it, its level of detail
// and its grid coordinates. It is comparable and used directly as a map key.
type TileKey struct {
	ProducerID int
	Level      int
	X          int
	Y          int
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", k.ProducerID, k.Level, k.X, k.Y)
}

// Slot is one unit of storage handed out by a Backend.
type Slot interface {
	Index() int
	Write(data []byte) error
	Read() ([]byte, error)
}

// Backend is a fixed pool of slots.
// Acquire returns false when the pool is exhausted and keeps no state in that case.
type Backend interface {
	Name() string
	Capacity() int
	Acquire() (Slot, bool)
	Release(slot Slot)
}

// Handle is deferred work that fills a tile's slots. The cache only stores it;
// running it is up to the caller.
type Handle interface {
	Run(ctx context.Context) error
}

// Producer builds the deferred handle for a tile. It must not block and must not
// call back into the cache.
type Producer interface {
	CreateHandle(key TileKey, slots []Slot) Handle
}
