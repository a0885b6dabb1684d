package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemoryPool_AcquireUntilExhausted(t *testing.T) {
	p := NewMemoryPool("pixels", 3)

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		s, ok := p.Acquire()
		require.True(t, ok)
		require.False(t, seen[s.Index()])
		seen[s.Index()] = true
	}

	_, ok := p.Acquire()
	require.False(t, ok)
	require.Equal(t, 0, p.Available())

	// a failed acquire leaves nothing behind
	_, ok = p.Acquire()
	require.False(t, ok)
	require.Equal(t, 0, p.Available())
}

func TestMemoryPool_ReleaseAndReuse(t *testing.T) {
	p := NewMemoryPool("pixels", 1)

	s, ok := p.Acquire()
	require.True(t, ok)
	require.NoError(t, s.Write([]byte("tile")))

	data, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, []byte("tile"), data)

	p.Release(s)
	require.Equal(t, 1, p.Available())

	// double release is ignored
	p.Release(s)
	require.Equal(t, 1, p.Available())

	again, ok := p.Acquire()
	require.True(t, ok)
	require.Equal(t, s.Index(), again.Index())

	data, err = again.Read()
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestMemoryPool_ForeignSlotIgnored(t *testing.T) {
	a := NewMemoryPool("a", 1)
	b := NewMemoryPool("b", 1)

	s, ok := a.Acquire()
	require.True(t, ok)

	b.Release(s)
	require.Equal(t, 1, b.Available())
	require.Equal(t, 0, a.Available())
}

func TestFilePool_WriteReadRelease(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePool("webp", dir, 2)
	require.NoError(t, err)

	s, ok := p.Acquire()
	require.True(t, ok)

	data, err := s.Read()
	require.NoError(t, err)
	require.Empty(t, data)

	require.NoError(t, s.Write([]byte("payload")))
	data, err = s.Read()
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	path := filepath.Join(dir, "slot_0.bin")
	_, err = os.Stat(path)
	require.NoError(t, err)

	p.Release(s)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
	require.Equal(t, 2, p.Available())
}

func TestFilePool_SlotsLockIndependently(t *testing.T) {
	p, err := NewFilePool("jpeg", t.TempDir(), 3)
	require.NoError(t, err)

	busy, ok := p.Acquire()
	require.True(t, ok)
	other, ok := p.Acquire()
	require.True(t, ok)

	// a write in progress on one slot leaves the pool and its other slots usable
	busy.(*fileSlot).mu.Lock()
	defer busy.(*fileSlot).mu.Unlock()

	require.NoError(t, other.Write([]byte("tile")))
	data, err := other.Read()
	require.NoError(t, err)
	require.Equal(t, []byte("tile"), data)
	require.Equal(t, 1, p.Available())
	_, ok = p.Acquire()
	require.True(t, ok)
}

func TestFilePool_ResetsLeftoverSlots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slot_1.bin"), []byte("stale"), 0644))

	p, err := NewFilePool("jpeg", dir, 2)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "slot_1.bin"))
	require.True(t, os.IsNotExist(err))
	require.Equal(t, 2, p.Capacity())
}

func TestNewBackend(t *testing.T) {
	log := zaptest.NewLogger(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		kind    string
		slots   int
		wantErr bool
	}{
		{name: "memory", kind: "memory", slots: 4},
		{name: "file", kind: "file", slots: 4},
		{name: "unknown kind", kind: "redis", slots: 4, wantErr: true},
		{name: "zero capacity", kind: "memory", slots: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.kind, "jpeg", tt.slots, dir, log)
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, "jpeg", b.Name())
			require.Equal(t, tt.slots, b.Capacity())
		})
	}
}

func TestNewBackends(t *testing.T) {
	backends, err := NewBackends("memory", []string{"jpeg", "webp"}, 2, "", nil)
	require.NoError(t, err)
	require.Len(t, backends, 2)
	require.Equal(t, "webp", backends[1].Name())
}
