package config

import (
	"github.com/fsnotify/fsnotify"
)

// WatcherNotification is the delegate methods from a file watcher
type WatcherNotification interface {
	WatcherItemDidChange(string)
	WatcherDidError(error)
}

// FileWatcher is the base interface for file watching
type FileWatcher interface {
	Start(WatcherNotification)
	Add(string) error
	Shutdown()
}

// fileWatcher notifies when a watched file has been written to
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	shutdown chan struct{}
}

// NewFileWatcher is a standard constructor
func NewFileWatcher() (FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fileWatcher{
		watcher:  watcher,
		shutdown: make(chan struct{}),
	}, nil
}

// Add adds a file to start watching
func (f *fileWatcher) Add(filepath string) error {
	return f.watcher.Add(filepath)
}

// Shutdown stops the file watching run loop
func (f *fileWatcher) Shutdown() {
	// don't block if Start quit early
	select {
	case f.shutdown <- struct{}{}:
	default:
	}
}

// Start is a runloop to watch for changes to the files added with Add()
func (f *fileWatcher) Start(notifier WatcherNotification) {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				notifier.WatcherItemDidChange(event.Name)
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			notifier.WatcherDidError(err)

		case <-f.shutdown:
			f.watcher.Close()
			return
		}
	}
}
