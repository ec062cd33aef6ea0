// Package cache stores fetched URL content on disk, one file per URL.
//
// Files are named by the SHA-256 of the URL. A file's presence is the only
// hit signal; entries never expire and are only removed by Clear.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrExists is returned by Write when the URL is already cached.
var ErrExists = errors.New("cache entry exists")

// Cache is a content-addressed directory of fetched responses.
type Cache struct {
	dir string
}

// New creates a cache rooted at dir.
// If dir is empty, uses the user cache dir (~/.cache/url-preview on Linux).
// The directory is created lazily on first write.
func New(dir string) (*Cache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("getting cache dir: %w", err)
		}
		dir = filepath.Join(base, "url-preview")
	}
	return &Cache{dir: expandHome(dir)}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Key returns the cache key for a URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Path returns the file path a URL is cached at.
func (c *Cache) Path(url string) string {
	return filepath.Join(c.dir, Key(url))
}

// Exists reports whether the URL has a cache entry.
func (c *Cache) Exists(url string) bool {
	_, err := os.Stat(c.Path(url))
	return err == nil
}

// Read returns the full cached content for a URL.
func (c *Cache) Read(url string) ([]byte, error) {
	data, err := os.ReadFile(c.Path(url))
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	return data, nil
}

// Write stores data byte-for-byte. Returns ErrExists without touching the
// file if the URL is already cached.
func (c *Cache) Write(url string, data []byte) error {
	path := c.Path(url)
	if _, err := os.Stat(path); err == nil {
		return ErrExists
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	// Write to a temp file and rename so concurrent writers never leave a
	// partial entry behind.
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}

	// Another writer may have won while we were writing.
	if _, err := os.Stat(path); err == nil {
		os.Remove(tmp.Name())
		return ErrExists
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("committing cache entry: %w", err)
	}
	return nil
}

// WriteText stores data as text: invalid UTF-8 is replaced and CRLF line
// endings are normalized to LF.
func (c *Cache) WriteText(url string, data []byte) error {
	return c.Write(url, normalizeText(data))
}

// Clear removes every cache entry. The directory itself is kept.
func (c *Cache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func normalizeText(data []byte) []byte {
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}

func expandHome(dir string) string {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	return dir
}
