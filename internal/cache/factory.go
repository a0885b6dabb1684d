package cache

import (
	"path/filepath"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"
)

// NewBackend creates a slot pool based on the backend kind
func NewBackend(kind, name string, capacity int, dir string, log *zap.Logger) (Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		return nil, errors.Newf(errors.CodeInvalidConfig, "backend %s: capacity must be positive, got %d", name, capacity)
	}

	switch kind {
	case "memory":
		log.Info("Using memory slot pool", zap.String("backend", name), zap.Int("slots", capacity))
		return NewMemoryPool(name, capacity), nil
	case "file":
		slotDir := filepath.Join(dir, name)
		log.Info("Using file slot pool", zap.String("backend", name), zap.Int("slots", capacity), zap.String("dir", slotDir))
		pool, err := NewFilePool(name, slotDir, capacity)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "backend %s", name)
		}
		return pool, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidConfig, "unknown slot backend: %s (supported: memory, file)", kind)
	}
}

// NewBackends creates one pool of the same kind per name.
func NewBackends(kind string, names []string, capacity int, dir string, log *zap.Logger) ([]Backend, error) {
	backends := make([]Backend, 0, len(names))
	for _, name := range names {
		b, err := NewBackend(kind, name, capacity, dir, log)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return backends, nil
}
