package cache

type queueNode struct {
	key   TileKey
	tile  *Tile
	older *queueNode
	newer *queueNode
}

// EvictionQueue holds unused tiles in the order they were released.
// Keyed removal and oldest removal are both O(1): the map finds a node and the
// node unlinks itself from a circular list anchored at a sentinel head.
type EvictionQueue struct {
	head  queueNode
	nodes map[TileKey]*queueNode
}

func NewEvictionQueue(sizeHint int) *EvictionQueue {
	q := &EvictionQueue{
		nodes: make(map[TileKey]*queueNode, sizeHint),
	}
	q.head.older = &q.head
	q.head.newer = &q.head
	return q
}

// PushBack appends tile as the newest entry. It returns false and leaves the
// queue untouched if key is already queued.
func (q *EvictionQueue) PushBack(key TileKey, tile *Tile) bool {
	if _, ok := q.nodes[key]; ok {
		return false
	}

	n := &queueNode{key: key, tile: tile}
	n.older = q.head.older
	n.newer = &q.head
	n.older.newer = n
	n.newer.older = n
	q.nodes[key] = n
	return true
}

func (q *EvictionQueue) Remove(key TileKey) (*Tile, bool) {
	n, ok := q.nodes[key]
	if !ok {
		return nil, false
	}
	q.unlink(n)
	return n.tile, true
}

// PopOldest removes and returns the entry queued the longest.
func (q *EvictionQueue) PopOldest() (TileKey, *Tile, bool) {
	n := q.head.newer
	if n == &q.head {
		return TileKey{}, nil, false
	}
	q.unlink(n)
	return n.key, n.tile, true
}

// Oldest returns the entry PopOldest would remove, without removing it.
func (q *EvictionQueue) Oldest() (TileKey, *Tile, bool) {
	n := q.head.newer
	if n == &q.head {
		return TileKey{}, nil, false
	}
	return n.key, n.tile, true
}

func (q *EvictionQueue) Contains(key TileKey) bool {
	_, ok := q.nodes[key]
	return ok
}

func (q *EvictionQueue) Get(key TileKey) (*Tile, bool) {
	n, ok := q.nodes[key]
	if !ok {
		return nil, false
	}
	return n.tile, true
}

func (q *EvictionQueue) IsEmpty() bool {
	return len(q.nodes) == 0
}

func (q *EvictionQueue) Len() int {
	return len(q.nodes)
}

// Each calls fn for every entry from oldest to newest until fn returns false.
// fn must not modify the queue.
func (q *EvictionQueue) Each(fn func(key TileKey, tile *Tile) bool) {
	for n := q.head.newer; n != &q.head; n = n.newer {
		if !fn(n.key, n.tile) {
			return
		}
	}
}

func (q *EvictionQueue) unlink(n *queueNode) {
	n.older.newer = n.newer
	n.newer.older = n.older
	n.older = nil
	n.newer = nil
	delete(q.nodes, n.key)
}
