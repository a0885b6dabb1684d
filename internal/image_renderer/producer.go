package image_renderer

import (
	"context"
	"fmt"

	"gigatile/internal/cache"
	"gigatile/internal/task"
)

// Slot order of every tile: one backend per encoding.
const (
	SlotJPEG = iota
	SlotWebP
)

// BackendNames lists the slot backends a renderer cache needs, in slot order.
var BackendNames = []string{"jpeg", "webp"}

// imageProducer builds the render task for tiles of one source image.
type imageProducer struct {
	imageID string
	path    string
	width   int
	height  int
	maxZoom int
	render  RenderFunc
}

func (p *imageProducer) CreateHandle(key cache.TileKey, slots []cache.Slot) cache.Handle {
	req := TileRequest{
		Width:   p.width,
		Height:  p.height,
		MaxZoom: p.maxZoom,
		Z:       key.Level,
		X:       key.X,
		Y:       key.Y,
	}
	label := fmt.Sprintf("%s/%d/%d/%d", p.imageID, key.Level, key.X, key.Y)

	return task.New(label, func(ctx context.Context) error {
		encoded, err := p.render(ctx, p.path, req)
		if err != nil {
			return fmt.Errorf("render %s: %w", label, err)
		}
		if err := slots[SlotJPEG].Write(encoded.JPEG); err != nil {
			return fmt.Errorf("store %s: %w", label, err)
		}
		if err := slots[SlotWebP].Write(encoded.WebP); err != nil {
			return fmt.Errorf("store %s: %w", label, err)
		}
		return nil
	})
}
