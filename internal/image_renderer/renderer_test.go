package image_renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gigatile/internal/cache"
	"gigatile/internal/image_list"
	"gigatile/internal/task"
)

type fakeRender struct {
	calls    atomic.Int32
	fail     bool
	onRender func()
}

func (f *fakeRender) render(ctx context.Context, path string, req TileRequest) (*Encoded, error) {
	f.calls.Add(1)
	if f.onRender != nil {
		f.onRender()
	}
	if f.fail {
		return nil, fmt.Errorf("vips exploded")
	}
	name := fmt.Sprintf("%s@%d/%d/%d", filepath.Base(path), req.Z, req.X, req.Y)
	return &Encoded{JPEG: []byte("jpeg:" + name), WebP: []byte("webp:" + name)}, nil
}

func probe(path string) (int, int, error) {
	return 1024, 512, nil
}

type fixture struct {
	dir      string
	scanner  *image_list.Scanner
	cache    *cache.TileCache
	render   *fakeRender
	renderer *Renderer
}

func newFixture(t *testing.T, capacity int, images ...string) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	dir := t.TempDir()
	for _, name := range images {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0644))
	}
	scanner := image_list.NewWithProbe(dir, log, probe)
	require.NoError(t, scanner.Scan())

	backends, err := cache.NewBackends("memory", BackendNames, capacity, "", log)
	require.NoError(t, err)
	tc, err := cache.New(capacity, backends, log)
	require.NoError(t, err)

	f := &fixture{dir: dir, scanner: scanner, cache: tc, render: &fakeRender{}}
	f.renderer = NewWithRenderFunc(scanner, tc, f.render.render, log)
	require.NoError(t, f.renderer.SyncImages())
	return f
}

func TestRenderTile_ServesBothFormats(t *testing.T) {
	f := newFixture(t, 4, "map.tif")
	ctx := context.Background()

	jpeg, err := f.renderer.RenderTile(ctx, "map", 1, 1, 0, "jpeg")
	require.NoError(t, err)
	require.Equal(t, "jpeg:map.tif@1/1/0", string(jpeg.Data))
	require.Equal(t, len(jpeg.Data), jpeg.Size)
	require.Len(t, jpeg.ETag, 16)

	webp, err := f.renderer.RenderTile(ctx, "map", 1, 1, 0, "webp")
	require.NoError(t, err)
	require.Equal(t, "webp:map.tif@1/1/0", string(webp.Data))
	require.NotEqual(t, jpeg.ETag, webp.ETag)

	// the second request revives the finished tile instead of rendering again
	require.Equal(t, int32(1), f.render.calls.Load())

	stats := f.renderer.Stats()
	require.Equal(t, 0, stats.Active)
	require.Equal(t, 1, stats.Queued)
	require.Equal(t, uint64(1), stats.Revives)
}

func TestRenderTile_Errors(t *testing.T) {
	f := newFixture(t, 2, "map.tif")
	ctx := context.Background()

	tests := []struct {
		name    string
		imageID string
		z, x, y int
		format  string
		code    errors.ErrorCode
	}{
		{name: "unknown image", imageID: "nope", format: "jpeg", code: errors.CodeNotFound},
		{name: "bad format", imageID: "map", format: "gif", code: errors.CodeInvalidInput},
		{name: "zoom too deep", imageID: "map", z: 3, format: "jpeg", code: errors.CodeInvalidInput},
		{name: "outside grid", imageID: "map", z: 1, x: 0, y: 1, format: "jpeg", code: errors.CodeInvalidInput},
		{name: "negative coordinate", imageID: "map", z: 0, x: -1, format: "jpeg", code: errors.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.renderer.RenderTile(ctx, tt.imageID, tt.z, tt.x, tt.y, tt.format)
			require.Error(t, err)
			require.Equal(t, tt.code, errors.GetCode(err))
		})
	}
	require.Equal(t, int32(0), f.render.calls.Load())
}

func TestRenderTile_RenderFailure(t *testing.T) {
	f := newFixture(t, 2, "map.tif")
	f.render.fail = true

	_, err := f.renderer.RenderTile(context.Background(), "map", 0, 0, 0, "jpeg")
	require.Error(t, err)
	require.Equal(t, errors.CodeExecutionFailed, errors.GetCode(err))
	require.Equal(t, 0, f.renderer.Stats().Active)
}

func TestRenderTile_FailedRenderIsRetried(t *testing.T) {
	f := newFixture(t, 2, "map.tif")
	ctx := context.Background()
	f.render.fail = true

	_, err := f.renderer.RenderTile(ctx, "map", 0, 0, 0, "jpeg")
	require.Equal(t, errors.CodeExecutionFailed, errors.GetCode(err))
	require.Equal(t, 1, f.renderer.Stats().Queued)

	f.render.fail = false
	res, err := f.renderer.RenderTile(ctx, "map", 0, 0, 0, "jpeg")
	require.NoError(t, err)
	require.Equal(t, "jpeg:map.tif@0/0/0", string(res.Data))
	require.Equal(t, int32(2), f.render.calls.Load())
	require.Equal(t, uint64(1), f.renderer.Stats().Revives)
}

func TestRenderTile_CloseDuringRender(t *testing.T) {
	f := newFixture(t, 2, "map.tif")
	f.render.onRender = f.renderer.Close

	_, err := f.renderer.RenderTile(context.Background(), "map", 0, 0, 0, "jpeg")
	require.Error(t, err)
	require.Equal(t, errors.CodeUnavailable, errors.GetCode(err))

	stats := f.renderer.Stats()
	require.Equal(t, 0, stats.Active)
	require.Equal(t, 0, stats.Queued)
}

func TestRenderTile_RecycledTileIsRenderedAgain(t *testing.T) {
	f := newFixture(t, 1, "map.tif")
	ctx := context.Background()

	_, err := f.renderer.RenderTile(ctx, "map", 0, 0, 0, "jpeg")
	require.NoError(t, err)
	other, err := f.renderer.RenderTile(ctx, "map", 1, 0, 0, "jpeg")
	require.NoError(t, err)
	require.Equal(t, "jpeg:map.tif@1/0/0", string(other.Data))

	again, err := f.renderer.RenderTile(ctx, "map", 0, 0, 0, "jpeg")
	require.NoError(t, err)
	require.Equal(t, "jpeg:map.tif@0/0/0", string(again.Data))

	require.Equal(t, int32(3), f.render.calls.Load())
	require.Equal(t, uint64(2), f.renderer.Stats().Recycles)
}

func TestWarmup(t *testing.T) {
	f := newFixture(t, 4, "a.tif", "b.png")
	sched := task.NewScheduler(2, zaptest.NewLogger(t))

	// 1024x512 has max zoom 2; levels 0 and 1 hold 1 + 2 tiles per image
	warmed, err := f.renderer.Warmup(context.Background(), 1, sched)
	require.NoError(t, err)
	require.Equal(t, 6, warmed)
	require.Equal(t, int32(6), f.render.calls.Load())

	stats := f.renderer.Stats()
	require.Equal(t, 0, stats.Active)
	require.Equal(t, 4, stats.Queued)
	require.LessOrEqual(t, stats.PeakActive, 2)
}

func TestWarmup_Cancelled(t *testing.T) {
	f := newFixture(t, 4, "a.tif")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	warmed, err := f.renderer.Warmup(ctx, 2, task.NewScheduler(1, nil))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, warmed)
}

func TestSyncImages_UnbindsRemovedImages(t *testing.T) {
	f := newFixture(t, 2, "a.tif", "b.tif")
	require.Equal(t, 2, f.renderer.Stats().Producers)

	_, err := f.renderer.RenderTile(context.Background(), "b", 0, 0, 0, "jpeg")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.dir, "b.tif")))
	require.NoError(t, f.scanner.Scan())
	require.NoError(t, f.renderer.SyncImages())

	stats := f.renderer.Stats()
	require.Equal(t, 1, stats.Producers)
	require.Equal(t, 0, stats.Queued)

	// syncing again is a no-op
	require.NoError(t, f.renderer.SyncImages())
	require.Equal(t, 1, f.renderer.Stats().Producers)
}

func TestGetImageMeta(t *testing.T) {
	f := newFixture(t, 1, "a.tif")

	meta, err := f.renderer.GetImageMeta("a")
	require.NoError(t, err)
	require.Equal(t, 2, meta["maxZoom"])
	require.Equal(t, TileSize, meta["tileSize"])

	_, err = f.renderer.GetImageMeta("zzz")
	require.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestClose(t *testing.T) {
	f := newFixture(t, 2, "a.tif")
	_, err := f.renderer.RenderTile(context.Background(), "a", 0, 0, 0, "jpeg")
	require.NoError(t, err)

	f.renderer.Close()
	require.Equal(t, 0, f.renderer.Stats().Queued)
}
