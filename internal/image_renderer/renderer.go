package image_renderer

import (
	"context"
	"sync"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"gigatile/internal/cache"
	"gigatile/internal/image_list"
	"gigatile/internal/task"
)

// Renderer serves tiles of catalogued images through the tile cache. The cache
// itself is single-threaded, so every cache call happens under mu; rendering
// runs outside it while the tile is held.
type Renderer struct {
	mu        sync.Mutex
	scanner   *image_list.Scanner
	tileCache *cache.TileCache
	render    RenderFunc
	producers map[string]int
	logger    *zap.Logger
}

type TileResult struct {
	Data []byte
	ETag string
	Size int
}

func New(scanner *image_list.Scanner, tileCache *cache.TileCache, logger *zap.Logger) *Renderer {
	return NewWithRenderFunc(scanner, tileCache, VipsRender, logger)
}

func NewWithRenderFunc(scanner *image_list.Scanner, tileCache *cache.TileCache, render RenderFunc, logger *zap.Logger) *Renderer {
	return &Renderer{
		scanner:   scanner,
		tileCache: tileCache,
		render:    render,
		producers: make(map[string]int),
		logger:    logger,
	}
}

// SyncImages binds a producer to every scanned image that has none yet and
// unbinds images that disappeared from the catalogue.
func (r *Renderer) SyncImages() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := map[string]bool{}
	for _, img := range r.scanner.GetImages() {
		present[img.ID] = true
		if _, ok := r.producers[img.ID]; ok {
			continue
		}

		id := r.tileCache.Registry().NextID()
		producer := &imageProducer{
			imageID: img.ID,
			path:    r.scanner.GetImagePathByID(img.ID),
			width:   img.Width,
			height:  img.Height,
			maxZoom: CalculateMaxZoom(img.Width, img.Height),
			render:  r.render,
		}
		if err := r.tileCache.RegisterProducer(id, producer); err != nil {
			return err
		}
		r.producers[img.ID] = id
		r.logger.Debug("Image bound to producer", zap.String("image", img.ID), zap.Int("producer_id", id))
	}

	for imageID, id := range r.producers {
		if present[imageID] {
			continue
		}
		if err := r.tileCache.UnregisterProducer(id); err != nil {
			r.logger.Warn("Failed to unbind removed image", zap.String("image", imageID), zap.Error(err))
			continue
		}
		delete(r.producers, imageID)
	}
	return nil
}

func slotForFormat(format string) (int, error) {
	switch format {
	case "jpeg", "jpg":
		return SlotJPEG, nil
	case "webp":
		return SlotWebP, nil
	default:
		return 0, errors.Newf(errors.CodeInvalidInput, "unsupported tile format: %s", format)
	}
}

// RenderTile returns the encoded tile, rendering it first if the cache does not
// hold a finished copy.
func (r *Renderer) RenderTile(ctx context.Context, imageID string, z, x, y int, format string) (*TileResult, error) {
	slot, err := slotForFormat(format)
	if err != nil {
		return nil, err
	}

	imageInfo := r.scanner.GetImageByID(imageID)
	if imageInfo == nil {
		return nil, errors.Newf(errors.CodeNotFound, "image not found: %s", imageID)
	}

	maxZoom := CalculateMaxZoom(imageInfo.Width, imageInfo.Height)
	if z > maxZoom {
		return nil, errors.Newf(errors.CodeInvalidInput, "zoom level %d exceeds max zoom %d", z, maxZoom)
	}
	if _, _, _, _, ok := tileBounds(imageInfo.Width, imageInfo.Height, maxZoom, z, x, y); !ok {
		return nil, errors.Newf(errors.CodeInvalidInput, "tile %d/%d/%d is outside the image", z, x, y)
	}

	tile, err := r.acquire(imageID, z, x, y)
	if err != nil {
		return nil, err
	}
	defer r.release(tile)

	r.mu.Lock()
	handle := tile.Handle()
	r.mu.Unlock()
	if handle == nil {
		return nil, errClosed(imageID, z, x, y)
	}
	if err := handle.Run(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CodeExecutionFailed, "failed to render tile")
	}

	// Close may detach the tile while it renders.
	r.mu.Lock()
	target := tile.Slot(slot)
	r.mu.Unlock()
	if target == nil {
		return nil, errClosed(imageID, z, x, y)
	}
	data, err := target.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read tile slot")
	}

	etag := generateETag(imageID, maxZoom, z, x, y, format)
	return &TileResult{
		Data: data,
		ETag: etag,
		Size: len(data),
	}, nil
}

func errClosed(imageID string, z, x, y int) error {
	return errors.Newf(errors.CodeUnavailable, "tile %s/%d/%d/%d was released by cache shutdown", imageID, z, x, y)
}

func (r *Renderer) acquire(imageID string, z, x, y int) (*cache.Tile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.producers[imageID]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "image has no tile producer: %s", imageID)
	}
	return r.tileCache.Acquire(id, z, x, y)
}

func (r *Renderer) release(tiles ...*cache.Tile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tile := range tiles {
		r.tileCache.Release(tile)
	}
}

// Warmup renders the first levels of every image so their tiles sit warm in the
// eviction queue. Tiles are acquired in frames no larger than half the cache,
// each frame rendered by the scheduler and then released.
func (r *Renderer) Warmup(ctx context.Context, levels int, scheduler *task.Scheduler) (int, error) {
	frameSize := r.tileCache.Capacity() / 2
	if frameSize < 1 {
		frameSize = 1
	}

	var pending []cache.TileKey
	for _, img := range r.scanner.GetImages() {
		r.mu.Lock()
		id, ok := r.producers[img.ID]
		r.mu.Unlock()
		if !ok {
			continue
		}

		maxZoom := CalculateMaxZoom(img.Width, img.Height)
		warmupZoom := levels
		if warmupZoom > maxZoom {
			warmupZoom = maxZoom
		}
		for z := 0; z <= warmupZoom; z++ {
			tilesX, tilesY := TileGrid(img.Width, img.Height, maxZoom, z)
			for x := 0; x < tilesX; x++ {
				for y := 0; y < tilesY; y++ {
					pending = append(pending, cache.TileKey{ProducerID: id, Level: z, X: x, Y: y})
				}
			}
		}
	}

	warmed := 0
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}

		n := frameSize
		if n > len(pending) {
			n = len(pending)
		}
		done, err := r.warmFrame(ctx, pending[:n], scheduler)
		warmed += done
		if err != nil {
			return warmed, err
		}
		pending = pending[done:]
	}
	return warmed, nil
}

// warmFrame acquires as many of keys as the cache allows, renders them and
// releases them. It reports how many keys it handled.
func (r *Renderer) warmFrame(ctx context.Context, keys []cache.TileKey, scheduler *task.Scheduler) (int, error) {
	tiles := make([]*cache.Tile, 0, len(keys))

	r.mu.Lock()
	for _, key := range keys {
		tile, err := r.tileCache.Acquire(key.ProducerID, key.Level, key.X, key.Y)
		if cache.IsCapacityExhausted(err) && len(tiles) > 0 {
			break
		}
		if err != nil {
			r.mu.Unlock()
			r.release(tiles...)
			return 0, err
		}
		tiles = append(tiles, tile)
	}
	r.mu.Unlock()
	defer r.release(tiles...)

	runners := make([]task.Runner, 0, len(tiles))
	for _, tile := range tiles {
		runners = append(runners, tile.Handle())
	}
	if err := scheduler.RunAll(ctx, runners); err != nil {
		return len(tiles), errors.Wrap(err, errors.CodeExecutionFailed, "warmup frame failed")
	}
	return len(tiles), nil
}

func (r *Renderer) GetImageMeta(imageID string) (map[string]interface{}, error) {
	imageInfo := r.scanner.GetImageByID(imageID)
	if imageInfo == nil {
		return nil, errors.Newf(errors.CodeNotFound, "image not found: %s", imageID)
	}

	maxZoom := CalculateMaxZoom(imageInfo.Width, imageInfo.Height)

	return map[string]interface{}{
		"width":    imageInfo.Width,
		"height":   imageInfo.Height,
		"tileSize": TileSize,
		"maxZoom":  maxZoom,
		"bytes":    imageInfo.Bytes,
		"formats":  []string{"jpeg", "webp"},
	}, nil
}

func (r *Renderer) Stats() cache.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tileCache.Stats()
}

// Close releases the cache's slots back to their backends.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tileCache.Close()
}
