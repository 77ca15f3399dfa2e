package cache

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/tristendillon/bundlefix/core/logger"
)

// ContentEntry is the last seen state of one binary.
type ContentEntry struct {
	Hash    string
	ModTime time.Time
	Size    int64
}

// ContentCache remembers what each binary looked like after the last fix,
// so watch mode can ignore events that did not change any bytes.
type ContentCache struct {
	entries map[string]ContentEntry
	mutex   sync.Mutex
	hits    int64
	misses  int64
}

func NewContentCache() *ContentCache {
	return &ContentCache{entries: make(map[string]ContentEntry)}
}

// UpdateContent refreshes the entry for path and reports whether its bytes
// differ from the recorded ones. A file that was tracked and is now gone
// counts as changed; directories never do.
func (cc *ContentCache) UpdateContent(path string) (ContentEntry, bool, error) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	old, tracked := cc.entries[path]

	stat, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		delete(cc.entries, path)
		if tracked {
			logger.Debug("ContentCache: %s removed", path)
		}
		return old, tracked, nil
	case err != nil:
		return ContentEntry{}, false, fmt.Errorf("failed to stat %s: %w", path, err)
	case stat.IsDir():
		return ContentEntry{}, false, nil
	}

	// size and mtime unchanged means the bytes are too
	if tracked && stat.Size() == old.Size && stat.ModTime().Equal(old.ModTime) {
		cc.hits++
		return old, false, nil
	}

	hash, err := hashFile(path)
	if err != nil {
		return ContentEntry{}, false, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	entry := ContentEntry{Hash: hash, ModTime: stat.ModTime(), Size: stat.Size()}
	cc.entries[path] = entry

	if tracked && hash == old.Hash {
		cc.hits++
		return entry, false, nil
	}
	cc.misses++
	logger.Debug("ContentCache: %s changed", path)
	return entry, true, nil
}

// Record refreshes the entries for paths without reporting changes.
func (cc *ContentCache) Record(paths []string) {
	for _, p := range paths {
		if _, _, err := cc.UpdateContent(p); err != nil {
			logger.Debug("ContentCache: %v", err)
		}
	}
}

// Stats returns hits, misses and the number of tracked files.
func (cc *ContentCache) Stats() (int64, int64, int) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()
	return cc.hits, cc.misses, len(cc.entries)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
