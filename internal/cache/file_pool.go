package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileSlot guards its own file, so writes to different slots run in parallel.
type fileSlot struct {
	mu    sync.RWMutex
	pool  *FilePool
	index int
}

func (s *fileSlot) Index() int {
	return s.index
}

func (s *fileSlot) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.pool.slotPath(s.index)

	// Write atomically
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write slot %d: %w", s.index, err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit slot %d: %w", s.index, err)
	}
	return nil
}

func (s *fileSlot) Read() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.pool.slotPath(s.index))
	if os.IsNotExist(err) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %d: %w", s.index, err)
	}
	return data, nil
}

// FilePool is a Backend whose slots are files in a directory.
// Structure: {dir}/slot_{index}.bin
type FilePool struct {
	mu    sync.RWMutex
	name  string
	dir   string
	slots []fileSlot
	free  freeList
}

// NewFilePool creates the pool directory and removes slot files left over from
// an earlier run.
func NewFilePool(name, dir string, capacity int) (*FilePool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create slot directory: %w", err)
	}

	p := &FilePool{
		name:  name,
		dir:   dir,
		slots: make([]fileSlot, capacity),
		free:  newFreeList(capacity),
	}
	for i := range p.slots {
		p.slots[i].pool = p
		p.slots[i].index = i
		if err := os.Remove(p.slotPath(i)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to reset slot %d: %w", i, err)
		}
	}
	return p, nil
}

func (p *FilePool) slotPath(index int) string {
	return filepath.Join(p.dir, fmt.Sprintf("slot_%d.bin", index))
}

func (p *FilePool) Name() string {
	return p.name
}

func (p *FilePool) Capacity() int {
	return len(p.slots)
}

func (p *FilePool) Available() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.free.available()
}

func (p *FilePool) Acquire() (Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.free.take()
	if !ok {
		return nil, false
	}
	return &p.slots[idx], true
}

// Release frees the slot and deletes its file.
func (p *FilePool) Release(slot Slot) {
	s, ok := slot.(*fileSlot)
	if !ok || s.pool != p {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free.put(s.index) {
		s.mu.Lock()
		os.Remove(p.slotPath(s.index))
		s.mu.Unlock()
	}
}
