package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"gigatile/internal/cache"
	"gigatile/internal/config"
	"gigatile/internal/image_list"
	"gigatile/internal/image_renderer"
)

type Handlers struct {
	config   *config.Config
	logger   *zap.Logger
	scanner  *image_list.Scanner
	renderer *image_renderer.Renderer
}

func New(config *config.Config, logger *zap.Logger, scanner *image_list.Scanner, renderer *image_renderer.Renderer) *Handlers {
	return &Handlers{
		config:   config,
		logger:   logger,
		scanner:  scanner,
		renderer: renderer,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/images", h.HandleImages)
	mux.HandleFunc("/api/images/", h.HandleImageRoutes)
	mux.HandleFunc("/api/cache/stats", h.HandleCacheStats)
	mux.HandleFunc("/healthz", h.HandleHealthz)

	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", h.extractIP(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigin := h.config.AllowedOrigin
		if allowedOrigin == "" {
			allowedOrigin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.scanner.GetImages())
}

func (h *Handlers) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.renderer.Stats())
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) HandleImageRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/images/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	imageID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "meta":
		h.handleImageMeta(w, r, imageID)
	case len(parts) == 5 && parts[1] == "tiles":
		h.handleTile(w, r, imageID, parts[2:])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleImageMeta(w http.ResponseWriter, r *http.Request, imageID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	meta, err := h.renderer.GetImageMeta(imageID)
	if err != nil {
		http.Error(w, err.Error(), StatusForError(err))
		return
	}

	writeJSON(w, meta)
}

// TileParams is a parsed {z}/{x}/{y}.{ext} tile path.
type TileParams struct {
	Z      int
	X      int
	Y      int
	Format string
}

// ParseTileParams parses the three trailing path segments of a tile URL.
func ParseTileParams(parts []string) (TileParams, error) {
	var p TileParams
	if len(parts) != 3 {
		return p, errors.New(errors.CodeInvalidInput, "invalid path")
	}

	var err error
	if p.Z, err = strconv.Atoi(parts[0]); err != nil {
		return p, errors.New(errors.CodeInvalidInput, "invalid zoom level")
	}
	if p.X, err = strconv.Atoi(parts[1]); err != nil {
		return p, errors.New(errors.CodeInvalidInput, "invalid x coordinate")
	}

	ext := filepath.Ext(parts[2])
	if p.Y, err = strconv.Atoi(strings.TrimSuffix(parts[2], ext)); err != nil {
		return p, errors.New(errors.CodeInvalidInput, "invalid y coordinate")
	}

	if p.Z < 0 || p.X < 0 || p.Y < 0 {
		return p, errors.New(errors.CodeInvalidInput, "coordinates must be non-negative")
	}

	switch strings.TrimPrefix(ext, ".") {
	case "jpg", "jpeg":
		p.Format = "jpeg"
	case "webp":
		p.Format = "webp"
	default:
		return p, errors.New(errors.CodeInvalidInput, "invalid format")
	}
	return p, nil
}

func (h *Handlers) handleTile(w http.ResponseWriter, r *http.Request, imageID string, tileParts []string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params, err := ParseTileParams(tileParts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.renderer.RenderTile(r.Context(), imageID, params.Z, params.X, params.Y, params.Format)
	if err != nil {
		status := StatusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to render tile",
				zap.String("image", imageID),
				zap.Int("z", params.Z), zap.Int("x", params.X), zap.Int("y", params.Y),
				zap.String("code", string(errors.GetCode(err))),
				zap.Error(err),
			)
		}
		http.Error(w, err.Error(), status)
		return
	}

	if match := r.Header.Get("If-None-Match"); match == `"`+result.ETag+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", `"`+result.ETag+`"`)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", result.Size))
	w.Header().Set("Content-Type", "image/"+params.Format)

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(result.Data)
}

// StatusForError maps an error code to the HTTP status returned to clients.
func StatusForError(err error) int {
	if cache.IsCapacityExhausted(err) {
		return http.StatusServiceUnavailable
	}
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Not for real production use due to potential spoofing
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
