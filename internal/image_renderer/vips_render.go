package image_renderer

import (
	"context"
	"fmt"

	"github.com/cshum/vipsgen/vips"

	"gigatile/internal/image_list"
)

// TileRequest describes one tile of a source image.
type TileRequest struct {
	Width   int
	Height  int
	MaxZoom int
	Z       int
	X       int
	Y       int
}

// Encoded holds a rendered tile in every format the cache stores.
type Encoded struct {
	JPEG []byte
	WebP []byte
}

// RenderFunc rasterises one tile of the image at path.
type RenderFunc func(ctx context.Context, path string, req TileRequest) (*Encoded, error)

// VipsRender cuts the tile out of the source image, scales it to the level,
// pads edge tiles to a full tile and encodes it as JPEG and WebP.
func VipsRender(ctx context.Context, path string, req TileRequest) (*Encoded, error) {
	startX, startY, width, height, ok := tileBounds(req.Width, req.Height, req.MaxZoom, req.Z, req.X, req.Y)
	if !ok {
		return nil, fmt.Errorf("invalid tile bounds")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Use AccessRandom for efficient tile extraction from large files
	image, err := image_list.LoadImage(path, vips.AccessRandom)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()

	if err := image.ExtractArea(startX, startY, width, height); err != nil {
		return nil, fmt.Errorf("failed to extract area: %w", err)
	}

	// Scale with the level's factor so all tiles of a level share one scale.
	resizeOpts := vips.DefaultResizeOptions()
	resizeOpts.Kernel = vips.KernelLanczos3
	if err := image.Resize(TileSize/pixelsPerTile(req.MaxZoom, req.Z), resizeOpts); err != nil {
		return nil, fmt.Errorf("failed to resize: %w", err)
	}

	// Edge tiles are padded from the top-left so the grid stays aligned.
	if image.Width() < TileSize || image.Height() < TileSize {
		embedOpts := vips.DefaultEmbedOptions()
		embedOpts.Extend = vips.ExtendBackground
		embedOpts.Background = []float64{221, 221, 221} // #ddd
		if err := image.Embed(0, 0, TileSize, TileSize, embedOpts); err != nil {
			return nil, fmt.Errorf("failed to pad: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = 82
	jpegOpts.Interlace = false
	jpeg, err := image.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export jpeg: %w", err)
	}

	webpOpts := vips.DefaultWebpsaveBufferOptions()
	webpOpts.Q = 80
	webp, err := image.WebpsaveBuffer(webpOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export webp: %w", err)
	}

	return &Encoded{JPEG: jpeg, WebP: webp}, nil
}
