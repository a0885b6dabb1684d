package cache

// Tile is a cache entry. It is owned by the TileCache; callers borrow it between
// Acquire and Release.
type Tile struct {
	key    TileKey
	slots  []Slot
	handle Handle
	users  int
}

func newTile(key TileKey, slots []Slot, handle Handle) *Tile {
	return &Tile{
		key:    key,
		slots:  slots,
		handle: handle,
	}
}

func (t *Tile) Key() TileKey {
	return t.key
}

// Slots returns the tile's slots, one per backend in backend order.
// The returned slice must not be modified.
func (t *Tile) Slots() []Slot {
	return t.slots
}

// Slot returns the slot held in backend i, or nil if i is out of range.
func (t *Tile) Slot(i int) Slot {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	return t.slots[i]
}

func (t *Tile) Handle() Handle {
	return t.handle
}

func (t *Tile) Users() int {
	return t.users
}

// detach hands the slots over to a new owner. The tile is unusable afterwards.
func (t *Tile) detach() []Slot {
	slots := t.slots
	t.slots = nil
	t.handle = nil
	return slots
}
