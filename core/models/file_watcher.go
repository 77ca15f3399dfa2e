package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tristendillon/bundlefix/core/logger"
)

// FileWatcher is the state shared by the watch loop and its debounce timer.
type FileWatcher struct {
	Watcher       *fsnotify.Watcher
	RootDir       string   // exclusions are relative to this directory
	Roots         []string // directories watched recursively
	ExcludePaths  []string
	ExcludeNames  []string // directory names skipped at any depth
	Debounce      time.Duration
	DebounceTimer *time.Timer
	Mutex         sync.Mutex
	RunMutex      sync.Mutex // held while OnChange runs
	Closed        bool
	OnStart       func() error
	OnChange      func() error
	OnClose       func() error
}

func NewFileWatcher(rootDir string, roots, excludePaths []string, debounce time.Duration) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fw := &FileWatcher{
		Watcher:      watcher,
		RootDir:      rootDir,
		Roots:        roots,
		ExcludePaths: excludePaths,
		ExcludeNames: []string{"_CodeSignature", ".git"},
		Debounce:     debounce,
		OnStart:      func() error { return fmt.Errorf("OnStart not set") },
		OnChange:     func() error { return fmt.Errorf("OnChange not set") },
		OnClose:      func() error { return nil },
	}
	logger.Debug("Excluding paths: %v and names %v", fw.ExcludePaths, fw.ExcludeNames)

	return fw, nil
}

func (fw *FileWatcher) AddOnStartFunc(onStart func() error) {
	fw.OnStart = onStart
}

func (fw *FileWatcher) AddOnChangeFunc(onChange func() error) {
	fw.OnChange = onChange
}

func (fw *FileWatcher) AddOnCloseFunc(onClose func() error) {
	fw.OnClose = onClose
}
