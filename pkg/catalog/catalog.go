// Package catalog builds the list of flashable game images on disk.
//
// A catalog is derived fresh from the games directory on every call: each
// file carrying the image suffix becomes an Entry, paired with a thumbnail
// from the thumbnail directory when one with the same base name exists.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// Sentinel errors.
var (
	// ErrScan is returned when the games directory cannot be read.
	ErrScan = errors.New("catalog: cannot read games directory")

	// ErrNotFound is returned by Lookup for unknown file names.
	ErrNotFound = errors.New("catalog: game not found")
)

// Entry is one flashable image as shown on the page.
type Entry struct {
	FileName     string `json:"file"`
	DisplayName  string `json:"name"`
	ThumbnailURL string `json:"thumbnail,omitempty"`
}

// HasThumbnail reports whether a thumbnail was found for the entry.
func (e Entry) HasThumbnail() bool {
	return e.ThumbnailURL != ""
}

// Options configures a Builder.
type Options struct {
	GamesDir       string
	ThumbDir       string
	ThumbURLPrefix string
	ImageSuffix    string
	StripSuffix    string
	ThumbExt       string
}

// Builder scans the games directory.
type Builder struct {
	opts Options
}

// New creates a Builder. Empty suffix options fall back to .hex, .ino.hex
// and .png.
func New(opts Options) *Builder {
	if opts.ImageSuffix == "" {
		opts.ImageSuffix = ".hex"
	}
	if opts.StripSuffix == "" {
		opts.StripSuffix = ".ino" + opts.ImageSuffix
	}
	if opts.ThumbExt == "" {
		opts.ThumbExt = ".png"
	}
	opts.ThumbURLPrefix = strings.TrimRight(opts.ThumbURLPrefix, "/")
	return &Builder{opts: opts}
}

// GamesDir returns the directory being scanned.
func (b *Builder) GamesDir() string {
	return b.opts.GamesDir
}

// ThumbDir returns the thumbnail directory.
func (b *Builder) ThumbDir() string {
	return b.opts.ThumbDir
}

// ImageSuffix returns the suffix that marks a flashable file.
func (b *Builder) ImageSuffix() string {
	return b.opts.ImageSuffix
}

// Scan lists every image in the games directory, sorted by file name.
// Dot files and directories are skipped.
func (b *Builder) Scan() ([]Entry, error) {
	dirEntries, err := os.ReadDir(b.opts.GamesDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScan, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, b.opts.ImageSuffix) {
			continue
		}
		if !b.isFile(de) {
			continue
		}
		entries = append(entries, b.entry(name))
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FileName < entries[j].FileName
	})
	return entries, nil
}

// Lookup returns the entry for one file name without listing the directory.
func (b *Builder) Lookup(fileName string) (Entry, error) {
	if fileName == "" || fileName != filepath.Base(fileName) || !strings.HasSuffix(fileName, b.opts.ImageSuffix) {
		return Entry{}, ErrNotFound
	}
	info, err := os.Stat(filepath.Join(b.opts.GamesDir, fileName))
	if err != nil || !info.Mode().IsRegular() {
		return Entry{}, ErrNotFound
	}
	return b.entry(fileName), nil
}

func (b *Builder) entry(fileName string) Entry {
	base := BaseName(fileName, b.opts.ImageSuffix, b.opts.StripSuffix)
	return Entry{
		FileName:     fileName,
		DisplayName:  DisplayName(base),
		ThumbnailURL: b.thumbnailURL(base),
	}
}

func (b *Builder) isFile(de os.DirEntry) bool {
	if de.Type().IsRegular() {
		return true
	}
	if de.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(b.opts.GamesDir, de.Name()))
	return err == nil && info.Mode().IsRegular()
}

func (b *Builder) thumbnailURL(base string) string {
	if b.opts.ThumbDir == "" {
		return ""
	}
	name := base + b.opts.ThumbExt
	info, err := os.Stat(filepath.Join(b.opts.ThumbDir, name))
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return path.Join("/", b.opts.ThumbURLPrefix, url.PathEscape(name))
}

// BaseName strips the strip suffix (e.g. ".ino.hex") from fileName, falling
// back to the bare image suffix.
func BaseName(fileName, imageSuffix, stripSuffix string) string {
	if stripSuffix != "" && strings.HasSuffix(fileName, stripSuffix) {
		return strings.TrimSuffix(fileName, stripSuffix)
	}
	return strings.TrimSuffix(fileName, imageSuffix)
}

// DisplayName turns a base name into a label: underscores become spaces and
// every run of letters starts upper case with the rest lower case.
// "my_cool_game" -> "My Cool Game".
func DisplayName(base string) string {
	var sb strings.Builder
	sb.Grow(len(base))

	prevLetter := false
	for _, r := range strings.ReplaceAll(base, "_", " ") {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
