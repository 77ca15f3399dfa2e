package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tristendillon/bundlefix/core/cache"
	"github.com/tristendillon/bundlefix/core/logger"
	"github.com/tristendillon/bundlefix/core/models"
)

type FileWatcher interface {
	Watch() error
	Close() error
}

// FileWatcherImpl re-runs OnChange after binaries under the watched roots
// change content. Events that leave a file's bytes as they were, such as a
// no-op rewrite, are dropped.
type FileWatcherImpl struct {
	FileWatcher *models.FileWatcher
	Cache       *cache.ContentCache
}

func NewFileWatcher(rootDir string, roots, excludePaths []string, debounce time.Duration) (*FileWatcherImpl, error) {
	fw, err := models.NewFileWatcher(rootDir, roots, excludePaths, debounce)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &FileWatcherImpl{
		FileWatcher: fw,
		Cache:       cache.NewContentCache(),
	}, nil
}

// Watch blocks until Close is called or the watcher fails.
func (fw *FileWatcherImpl) Watch() error {
	for _, root := range fw.FileWatcher.Roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			logger.Debug("Not watching missing %s", root)
			continue
		}
		if err := fw.addWatchersRecursively(root); err != nil {
			return fmt.Errorf("failed to add watchers: %w", err)
		}
	}

	if err := fw.FileWatcher.OnStart(); err != nil {
		logger.Error("Watcher.OnStart failed: %v", err)
	}
	fw.record()

	for {
		select {
		case event, ok := <-fw.FileWatcher.Watcher.Events:
			if !ok {
				return fw.closedErr("events")
			}
			if fw.handle(event) {
				fw.debounceRun()
			}

		case err, ok := <-fw.FileWatcher.Watcher.Errors:
			if !ok {
				return fw.closedErr("errors")
			}
			logger.Error("Watcher error: %v", err)
		}
	}
}

// handle reports whether event should trigger a new run.
func (fw *FileWatcherImpl) handle(event fsnotify.Event) bool {
	if fw.shouldExcludePath(event.Name) {
		return false
	}
	logger.Debug("File event: %s %s", event.Op, event.Name)

	if event.Has(fsnotify.Create) {
		if stat, err := os.Stat(event.Name); err == nil && stat.IsDir() {
			logger.Debug("Adding watcher for new directory: %s", event.Name)
			if err := fw.addWatchersRecursively(event.Name); err != nil {
				logger.Warn("%v", err)
			}
			return true
		}
	}

	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}

	_, changed, err := fw.Cache.UpdateContent(event.Name)
	if err != nil {
		logger.Debug("%v", err)
		return true
	}
	return changed
}

func (fw *FileWatcherImpl) debounceRun() {
	fw.FileWatcher.Mutex.Lock()
	defer fw.FileWatcher.Mutex.Unlock()

	if fw.FileWatcher.Closed {
		return
	}
	if fw.FileWatcher.DebounceTimer != nil {
		fw.FileWatcher.DebounceTimer.Stop()
	}

	fw.FileWatcher.DebounceTimer = time.AfterFunc(fw.FileWatcher.Debounce, func() {
		fw.FileWatcher.RunMutex.Lock()
		defer fw.FileWatcher.RunMutex.Unlock()

		logger.Info("Changes detected, fixing again...")
		if err := fw.FileWatcher.OnChange(); err != nil {
			logger.Error("Watcher.OnChange failed: %v", err)
		}
		fw.record()
	})
}

// record remembers the current content of every watched file, so the
// writes made by OnChange do not schedule another run.
func (fw *FileWatcherImpl) record() {
	var files []string
	for _, root := range fw.FileWatcher.Roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				logger.Debug("Skipping %s: %v", path, err)
				return nil
			}
			if d.IsDir() {
				if path != root && fw.shouldExcludePath(path) {
					return filepath.SkipDir
				}
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			logger.Debug("Failed to record %s: %v", root, err)
		}
	}
	fw.Cache.Record(files)
	_, _, n := fw.Cache.Stats()
	logger.Debug("ContentCache: tracking %d files", n)
}

func (fw *FileWatcherImpl) Close() error {
	fw.FileWatcher.Mutex.Lock()
	fw.FileWatcher.Closed = true
	if fw.FileWatcher.DebounceTimer != nil {
		fw.FileWatcher.DebounceTimer.Stop()
	}
	fw.FileWatcher.Mutex.Unlock()

	// wait for a run in progress
	fw.FileWatcher.RunMutex.Lock()
	defer fw.FileWatcher.RunMutex.Unlock()

	if err := fw.FileWatcher.OnClose(); err != nil {
		logger.Error("Watcher.OnClose failed: %v", err)
	}

	return fw.FileWatcher.Watcher.Close()
}

func (fw *FileWatcherImpl) closedErr(channel string) error {
	fw.FileWatcher.Mutex.Lock()
	defer fw.FileWatcher.Mutex.Unlock()
	if fw.FileWatcher.Closed {
		return nil
	}
	return fmt.Errorf("watcher %s channel closed", channel)
}

func (fw *FileWatcherImpl) shouldExcludePath(path string) bool {
	relPath, err := filepath.Rel(fw.FileWatcher.RootDir, path)
	if err != nil {
		return false
	}

	relPath = filepath.Clean(relPath)

	for _, excludePath := range fw.FileWatcher.ExcludePaths {
		excludePath = filepath.Clean(excludePath)

		if relPath == excludePath {
			return true
		}
		if strings.HasPrefix(relPath, excludePath+string(filepath.Separator)) {
			return true
		}
	}

	for _, segment := range strings.Split(relPath, string(filepath.Separator)) {
		for _, name := range fw.FileWatcher.ExcludeNames {
			if segment == name {
				return true
			}
		}
	}

	return false
}

func (fw *FileWatcherImpl) addWatchersRecursively(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}

		if fw.shouldExcludePath(path) {
			logger.Debug("Excluding directory: %s", path)
			return filepath.SkipDir
		}

		logger.Debug("Adding watcher for: %s", path)
		if err := fw.FileWatcher.Watcher.Add(path); err != nil {
			return fmt.Errorf("failed to add watcher for %s: %w", path, err)
		}

		return nil
	})
}
