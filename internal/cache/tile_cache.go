package cache

import (
	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"
)

// Stats is a snapshot of the cache's diagnostics.
type Stats struct {
	Capacity   int    `json:"capacity"`
	Backends   int    `json:"backends"`
	Producers  int    `json:"producers"`
	Active     int    `json:"active"`
	Queued     int    `json:"queued"`
	PeakActive int    `json:"peak_active"`
	Hits       uint64 `json:"hits"`
	Revives    uint64 `json:"revives"`
	Misses     uint64 `json:"misses"`
	Recycles   uint64 `json:"recycles"`
}

// TileCache tracks which tiles occupy slots. Tiles in use sit in the active
// table; tiles nobody uses sit in the eviction queue, where they can be revived
// or have their slots recycled for a new tile, oldest first.
//
// TileCache is not safe for concurrent use. Callers sharing it between
// goroutines must serialise every call.
type TileCache struct {
	capacity int
	backends []Backend
	registry *ProducerRegistry
	active   map[TileKey]*Tile
	queue    *EvictionQueue
	log      *zap.Logger

	peakActive int
	hits       uint64
	revives    uint64
	misses     uint64
	recycles   uint64
}

// New creates a cache holding at most capacity tiles, each backed by one slot
// from every backend. Every backend must provide at least capacity slots.
func New(capacity int, backends []Backend, log *zap.Logger) (*TileCache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		return nil, errors.Newf(errors.CodeInvalidConfig, "capacity must be positive, got %d", capacity)
	}
	if len(backends) == 0 {
		return nil, errors.New(errors.CodeInvalidConfig, "at least one backend is required")
	}
	for i, b := range backends {
		if b == nil {
			return nil, errors.Newf(errors.CodeInvalidConfig, "backend %d is nil", i)
		}
		if b.Capacity() < capacity {
			return nil, errors.WithContext(
				errors.Newf(errors.CodeInvalidConfig, "backend %q holds %d slots, need %d", b.Name(), b.Capacity(), capacity),
				"backend", b.Name(),
			)
		}
	}

	c := &TileCache{
		capacity: capacity,
		backends: append([]Backend(nil), backends...),
		registry: NewProducerRegistry(),
		active:   make(map[TileKey]*Tile, capacity),
		queue:    NewEvictionQueue(capacity),
		log:      log,
	}

	log.Info("Tile cache created",
		zap.Int("capacity", capacity),
		zap.Int("backends", len(backends)),
	)
	return c, nil
}

// Registry returns the registry producers are bound in. Its NextID hands out
// fresh producer ids.
func (c *TileCache) Registry() *ProducerRegistry {
	return c.registry
}

func (c *TileCache) RegisterProducer(id int, p Producer) error {
	if err := c.registry.Register(id, p); err != nil {
		return err
	}
	c.log.Debug("Producer registered", zap.Int("producer_id", id))
	return nil
}

// UnregisterProducer unbinds a producer and drops its unused tiles. It fails if
// any of the producer's tiles is still in use.
func (c *TileCache) UnregisterProducer(id int) error {
	if _, ok := c.registry.Lookup(id); !ok {
		return errUnknownProducer(id)
	}
	for key := range c.active {
		if key.ProducerID == id {
			return errors.WithContext(
				errors.Newf(errors.CodeConflict, "producer %d still has tiles in use", id),
				"producer_id", id,
			)
		}
	}

	var stale []TileKey
	c.queue.Each(func(key TileKey, _ *Tile) bool {
		if key.ProducerID == id {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		if tile, ok := c.queue.Remove(key); ok {
			c.releaseSlots(tile.detach())
		}
	}

	c.registry.Unregister(id)
	c.log.Debug("Producer unregistered", zap.Int("producer_id", id), zap.Int("dropped_tiles", len(stale)))
	return nil
}

// Acquire returns the tile for the given coordinates and adds one user to it.
// An unused tile is revived from the eviction queue; otherwise fresh slots are
// taken, or the slots of the oldest unused tile are recycled when none are free.
// Every successful Acquire must be paired with a Release.
func (c *TileCache) Acquire(producerID, level, x, y int) (*Tile, error) {
	producer, ok := c.registry.Lookup(producerID)
	if !ok {
		return nil, errUnknownProducer(producerID)
	}

	key := TileKey{ProducerID: producerID, Level: level, X: x, Y: y}

	tile, ok := c.active[key]
	if ok {
		c.hits++
	} else {
		if tile, ok = c.queue.Remove(key); ok {
			c.revives++
			c.log.Debug("Tile revived", zap.Stringer("tile", key))
		} else {
			var err error
			tile, err = c.allocate(key, producer)
			if err != nil {
				return nil, err
			}
		}

		if tile == nil {
			err := errInvariant(key, "tile %s resolved to nothing", key)
			c.log.DPanic("Tile cache invariant violated", zap.Stringer("tile", key), zap.Error(err))
			return nil, err
		}
		c.active[key] = tile
	}

	tile.users++
	if len(c.active) > c.peakActive {
		c.peakActive = len(c.active)
	}
	return tile, nil
}

// Release drops one user from tile. When the last user is gone the tile moves
// to the back of the eviction queue. Releasing nil or an unused tile does nothing.
func (c *TileCache) Release(tile *Tile) {
	if tile == nil || tile.users == 0 {
		return
	}

	tile.users--
	if tile.users > 0 {
		return
	}

	key := tile.key
	if current, ok := c.active[key]; ok {
		if current != tile {
			c.log.Error("Released tile is shadowed by another active tile", zap.Stringer("tile", key))
			return
		}
		delete(c.active, key)
	} else {
		c.log.Error("Released tile missing from active table", zap.Stringer("tile", key))
	}

	c.queue.PushBack(key, tile)
}

// Find looks a tile up without changing any state. With includeQueued set it
// also returns unused tiles; their slots may be recycled by the next Acquire.
func (c *TileCache) Find(producerID, level, x, y int, includeQueued bool) (*Tile, bool) {
	key := TileKey{ProducerID: producerID, Level: level, X: x, Y: y}
	if tile, ok := c.active[key]; ok {
		return tile, true
	}
	if includeQueued {
		return c.queue.Get(key)
	}
	return nil, false
}

func (c *TileCache) Storage(i int) (Backend, error) {
	if i < 0 || i >= len(c.backends) {
		return nil, errBackendIndex(i, len(c.backends))
	}
	return c.backends[i], nil
}

func (c *TileCache) Capacity() int {
	return c.capacity
}

func (c *TileCache) BackendCount() int {
	return len(c.backends)
}

func (c *TileCache) ActiveCount() int {
	return len(c.active)
}

func (c *TileCache) QueuedCount() int {
	return c.queue.Len()
}

func (c *TileCache) PeakActiveCount() int {
	return c.peakActive
}

func (c *TileCache) Stats() Stats {
	return Stats{
		Capacity:   c.capacity,
		Backends:   len(c.backends),
		Producers:  c.registry.Len(),
		Active:     len(c.active),
		Queued:     c.queue.Len(),
		PeakActive: c.peakActive,
		Hits:       c.hits,
		Revives:    c.revives,
		Misses:     c.misses,
		Recycles:   c.recycles,
	}
}

// Close returns every slot to its backend and empties the cache. Tiles still
// borrowed by callers become invalid.
func (c *TileCache) Close() {
	if len(c.active) > 0 {
		c.log.Warn("Closing tile cache with tiles in use", zap.Int("active", len(c.active)))
	}
	for key, tile := range c.active {
		tile.users = 0
		c.releaseSlots(tile.detach())
		delete(c.active, key)
	}
	for {
		_, tile, ok := c.queue.PopOldest()
		if !ok {
			break
		}
		c.releaseSlots(tile.detach())
	}
	c.log.Info("Tile cache closed", zap.Int("peak_active", c.peakActive))
}

// allocate builds a new tile for key. All of its slots come from one source:
// either a fresh slot from every backend, or the whole slot list of the oldest
// queued tile.
func (c *TileCache) allocate(key TileKey, producer Producer) (*Tile, error) {
	if len(c.active)+c.queue.Len() < c.capacity {
		if slots, ok := c.acquireFresh(); ok {
			c.misses++
			c.log.Debug("Tile allocated", zap.Stringer("tile", key))
			return newTile(key, slots, producer.CreateHandle(key, slots)), nil
		}
	}

	donorKey, donor, ok := c.queue.PopOldest()
	if !ok {
		return nil, errCapacityExhausted(key, c.capacity)
	}

	slots := donor.detach()
	if len(slots) != len(c.backends) {
		err := errInvariant(key, "donor %s held %d slots, want %d", donorKey, len(slots), len(c.backends))
		c.log.DPanic("Tile cache invariant violated", zap.Stringer("tile", key), zap.Error(err))
		return nil, err
	}

	c.misses++
	c.recycles++
	c.log.Debug("Tile recycled",
		zap.Stringer("tile", key),
		zap.Stringer("donor", donorKey),
	)
	return newTile(key, slots, producer.CreateHandle(key, slots)), nil
}

// acquireFresh takes one slot from every backend. If any backend is exhausted,
// the slots already taken are returned and it reports false.
func (c *TileCache) acquireFresh() ([]Slot, bool) {
	slots := make([]Slot, 0, len(c.backends))
	for _, b := range c.backends {
		s, ok := b.Acquire()
		if !ok {
			c.log.Debug("Backend exhausted", zap.String("backend", b.Name()))
			c.releaseSlots(slots)
			return nil, false
		}
		slots = append(slots, s)
	}
	return slots, true
}

func (c *TileCache) releaseSlots(slots []Slot) {
	for i, s := range slots {
		c.backends[i].Release(s)
	}
}
