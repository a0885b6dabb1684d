package cache

import (
	"sync"
)

type memorySlot struct {
	pool  *MemoryPool
	index int
}

func (s *memorySlot) Index() int {
	return s.index
}

func (s *memorySlot) Write(data []byte) error {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()

	s.pool.data[s.index] = append(s.pool.data[s.index][:0], data...)
	return nil
}

func (s *memorySlot) Read() ([]byte, error) {
	s.pool.mu.RLock()
	defer s.pool.mu.RUnlock()

	buf := s.pool.data[s.index]
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// MemoryPool is a Backend whose slots are in-memory byte buffers. Buffers are
// kept across reuse so a recycled slot does not reallocate.
type MemoryPool struct {
	mu    sync.RWMutex
	name  string
	slots []memorySlot
	data  [][]byte
	free  freeList
}

// NewMemoryPool creates a pool with capacity slots
func NewMemoryPool(name string, capacity int) *MemoryPool {
	p := &MemoryPool{
		name:  name,
		slots: make([]memorySlot, capacity),
		data:  make([][]byte, capacity),
		free:  newFreeList(capacity),
	}
	for i := range p.slots {
		p.slots[i] = memorySlot{pool: p, index: i}
	}
	return p
}

func (p *MemoryPool) Name() string {
	return p.name
}

func (p *MemoryPool) Capacity() int {
	return len(p.slots)
}

func (p *MemoryPool) Available() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.free.available()
}

func (p *MemoryPool) Acquire() (Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.free.take()
	if !ok {
		return nil, false
	}
	return &p.slots[idx], true
}

func (p *MemoryPool) Release(slot Slot) {
	s, ok := slot.(*memorySlot)
	if !ok || s.pool != p {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free.put(s.index) {
		p.data[s.index] = p.data[s.index][:0]
	}
}
