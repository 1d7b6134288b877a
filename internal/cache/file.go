package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fileSuffix = ".cache.json"

// fileBackend persists one JSON file per key under a cache directory. Writes
// go through a temp file plus rename so concurrent readers observe either the
// old entry or the new one, never a torn write. Expired and undecodable files
// are removed when a Get trips over them.
type fileBackend struct {
	dir string
}

// NewFile constructs the filesystem backend rooted at dir, creating the
// directory when missing.
func NewFile(dir string) (Backend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache: file backend directory required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cache: create cache directory: %w", err)
	}
	return &fileBackend{dir: dir}, nil
}

// entryPath maps a key to a deterministic filename. Hashing keeps arbitrary
// key material out of the filesystem namespace.
func (f *fileBackend) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+fileSuffix)
}

func (f *fileBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	path := f.entryPath(key)
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache: file read: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		// Corrupt entry: purge it so later lookups are plain misses.
		_ = os.Remove(path)
		return Entry{}, false, fmt.Errorf("cache: file decode: %w", err)
	}
	if entry.Expired(time.Now()) {
		_ = os.Remove(path)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (f *fileBackend) Set(_ context.Context, key string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: file encode: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: file temp: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: file write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: file close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.entryPath(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: file rename: %w", err)
	}
	return nil
}

func (f *fileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: file delete: %w", err)
	}
	return nil
}

func (f *fileBackend) Clear(_ context.Context) error {
	names, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("cache: file clear: %w", err)
	}
	for _, name := range names {
		if name.IsDir() || !strings.HasSuffix(name.Name(), fileSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, name.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cache: file clear: %w", err)
		}
	}
	return nil
}

func (f *fileBackend) Stats(_ context.Context) (BackendStats, error) {
	stats := BackendStats{Kind: "file", Directory: f.dir}
	names, err := os.ReadDir(f.dir)
	if err != nil {
		return stats, fmt.Errorf("cache: file stats: %w", err)
	}
	now := time.Now()
	for _, name := range names {
		if name.IsDir() || !strings.HasSuffix(name.Name(), fileSuffix) {
			continue
		}
		stats.Keys++
		path := filepath.Join(f.dir, name.Name())
		if info, err := name.Info(); err == nil {
			stats.SizeBytes += info.Size()
		}
		payload, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		if entry.Expired(now) {
			stats.ExpiredKeys++
		}
	}
	return stats, nil
}

func (f *fileBackend) Close(context.Context) error {
	return nil
}
