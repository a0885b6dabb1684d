package image_list

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"
)

type ImageInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Bytes    int64  `json:"bytes"`
}

// ProbeFunc reports the pixel dimensions of the image at path.
type ProbeFunc func(path string) (width, height int, err error)

var extensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

type Scanner struct {
	dataDir string
	logger  *zap.Logger
	probe   ProbeFunc
	images  []ImageInfo
}

func New(dataDir string, logger *zap.Logger) *Scanner {
	return NewWithProbe(dataDir, logger, VipsProbe)
}

func NewWithProbe(dataDir string, logger *zap.Logger, probe ProbeFunc) *Scanner {
	return &Scanner{
		dataDir: dataDir,
		logger:  logger,
		probe:   probe,
		images:  []ImageInfo{},
	}
}

// Scan rebuilds the image list from the data directory. The image id is the
// file name without its extension; when two files share an id the first in
// lexical order wins.
func (s *Scanner) Scan() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	images := []ImageInfo{}
	seen := map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}

		path := s.getFilePath(entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
			continue
		}

		id := ImageID(entry.Name())
		if seen[id] {
			s.logger.Warn("Duplicate image id, skipping", zap.String("id", id), zap.String("path", path))
			continue
		}

		width, height, err := s.probe(path)
		if err != nil {
			s.logger.Warn("Failed to scan image", zap.String("path", path), zap.Error(err))
			continue
		}

		seen[id] = true
		images = append(images, ImageInfo{
			ID:       id,
			Filename: entry.Name(),
			Width:    width,
			Height:   height,
			Bytes:    info.Size(),
		})
	}

	sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })
	s.images = images

	s.logger.Info("Image scan completed", zap.Int("images", len(images)))
	return nil
}

func (s *Scanner) GetImages() []ImageInfo {
	return s.images
}

func (s *Scanner) GetImageByID(id string) *ImageInfo {
	for _, img := range s.images {
		if img.ID == id {
			return &img
		}
	}
	return nil
}

func (s *Scanner) GetImagePathByID(id string) string {
	imageInfo := s.GetImageByID(id)
	if imageInfo == nil {
		return ""
	}
	return s.getFilePath(imageInfo.Filename)
}

func (s *Scanner) getFilePath(filename string) string {
	return filepath.Join(s.dataDir, filename)
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

func ImageID(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}

// VipsProbe opens the image sequentially, which is enough to read its header.
func VipsProbe(path string) (int, int, error) {
	image, err := LoadImage(path, vips.AccessSequential)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()

	return image.Width(), image.Height(), nil
}

// LoadImage loads an image based on file extension
func LoadImage(path string, access vips.Access) (*vips.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		opts := vips.DefaultTiffloadOptions()
		opts.Access = access
		return vips.NewTiffload(path, opts)
	case ".jpg", ".jpeg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(path))
	}
}
