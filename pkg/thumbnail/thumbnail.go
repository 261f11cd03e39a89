// Package thumbnail serves game thumbnails, optionally downscaled.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nfnt/resize"
)

// Sentinel errors.
var (
	// ErrInvalidName is returned for names that are not plain file names.
	ErrInvalidName = errors.New("thumbnail: invalid name")

	// ErrNotFound is returned when no thumbnail file exists.
	ErrNotFound = errors.New("thumbnail: not found")
)

// Image is a thumbnail ready to send.
type Image struct {
	Data        []byte
	ContentType string
	ModTime     time.Time
}

// Options configures a Store.
type Options struct {
	Dir string

	// MaxSize bounds the longest edge in pixels. Zero serves files as is.
	MaxSize uint

	// CacheEntries bounds the number of resized images kept in memory.
	CacheEntries int
}

// Store loads thumbnails from a directory.
type Store struct {
	dir     string
	maxSize uint
	limit   int

	mu    sync.Mutex
	cache map[string]*Image
	order []string
}

// NewStore creates a Store.
func NewStore(opts Options) *Store {
	limit := opts.CacheEntries
	if limit <= 0 {
		limit = 128
	}
	return &Store{
		dir:     opts.Dir,
		maxSize: opts.MaxSize,
		limit:   limit,
		cache:   make(map[string]*Image),
	}
}

// Dir returns the thumbnail directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the thumbnail called name.
func (s *Store) Load(name string) (*Image, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.Contains(name, `\`) {
		return nil, ErrInvalidName
	}

	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	if s.maxSize == 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("thumbnail: read %s: %w", name, err)
		}
		return &Image{Data: data, ContentType: contentType(name), ModTime: info.ModTime()}, nil
	}

	s.mu.Lock()
	cached, ok := s.cache[name]
	s.mu.Unlock()
	if ok && cached.ModTime.Equal(info.ModTime()) {
		return cached, nil
	}

	img, err := s.scale(path, name, info.ModTime())
	if err != nil {
		return nil, err
	}
	s.store(name, img)
	return img, nil
}

func (s *Store) scale(path, name string, modTime time.Time) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: read %s: %w", name, err)
	}
	original := &Image{Data: data, ContentType: contentType(name), ModTime: modTime}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Not a decodable image; serve the bytes unchanged.
		return original, nil
	}

	b := src.Bounds()
	if uint(b.Dx()) <= s.maxSize && uint(b.Dy()) <= s.maxSize {
		return original, nil
	}

	thumb := resize.Thumbnail(s.maxSize, s.maxSize, src, resize.Lanczos3)

	var buf bytes.Buffer
	out := &Image{ModTime: modTime}
	if format == "png" {
		err = png.Encode(&buf, thumb)
		out.ContentType = "image/png"
	} else {
		err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85})
		out.ContentType = "image/jpeg"
	}
	if err != nil {
		return nil, fmt.Errorf("thumbnail: encode %s: %w", name, err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

func (s *Store) store(name string, img *Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[name]; !exists {
		s.order = append(s.order, name)
	}
	s.cache[name] = img

	for len(s.order) > s.limit {
		delete(s.cache, s.order[0])
		s.order = s.order[1:]
	}
}

// Cached returns the number of cached images.
func (s *Store) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
