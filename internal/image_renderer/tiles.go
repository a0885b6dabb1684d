package image_renderer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

const TileSize = 256

// CalculateMaxZoom returns the level at which one tile pixel is one source pixel.
// At zoom 0 the whole image fits a single tile.
func CalculateMaxZoom(width, height int) int {
	maxDim := math.Max(float64(width), float64(height))
	scale := maxDim / TileSize
	maxZoom := int(math.Ceil(math.Log2(scale)))
	if maxZoom < 0 {
		return 0
	}
	return maxZoom
}

// pixelsPerTile is how many source pixels one tile covers at zoom z.
func pixelsPerTile(maxZoom, z int) float64 {
	return TileSize * math.Pow(2, float64(maxZoom-z))
}

// TileGrid returns the number of tile columns and rows at zoom z.
func TileGrid(width, height, maxZoom, z int) (int, int) {
	ppt := pixelsPerTile(maxZoom, z)
	return int(math.Ceil(float64(width) / ppt)), int(math.Ceil(float64(height) / ppt))
}

// tileBounds returns the source region of a tile, clamped to the image.
// ok is false when the tile lies outside the image.
func tileBounds(width, height, maxZoom, z, x, y int) (startX, startY, w, h int, ok bool) {
	ppt := pixelsPerTile(maxZoom, z)

	startX = int(float64(x) * ppt)
	startY = int(float64(y) * ppt)
	endX := int(math.Min(float64(startX)+ppt, float64(width)))
	endY := int(math.Min(float64(startY)+ppt, float64(height)))

	w = endX - startX
	h = endY - startY
	if x < 0 || y < 0 || w <= 0 || h <= 0 {
		return 0, 0, 0, 0, false
	}
	return startX, startY, w, h, true
}

func generateETag(imageID string, maxZoom, z, x, y int, format string) string {
	keyStr := fmt.Sprintf("%s_%d_%d/%d/%d/%d.%s", imageID, TileSize, maxZoom, z, x, y, format)
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])[:16]
}
