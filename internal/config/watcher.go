package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the configuration whenever the file at path changes and
// hands each successfully parsed result to onChange. Events for the same
// file within the debounce window collapse into one reload. Watching stops
// when ctx is cancelled. Parse failures keep the previous configuration and
// are logged, never fatal.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory, not the file: editors that write via rename
	// replace the inode and a file-level watch would go stale.
	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err = watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		const debounce = 200 * time.Millisecond
		var lastReload time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != absPath {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if time.Since(lastReload) < debounce {
					continue
				}
				lastReload = time.Now()
				cfg, loadErr := LoadConfig(absPath)
				if loadErr != nil {
					log.Errorf("config reload failed, keeping previous configuration: %v", loadErr)
					continue
				}
				if _, loadErr = ValidateConfig(cfg); loadErr != nil {
					log.Errorf("config reload rejected, keeping previous configuration: %v", loadErr)
					continue
				}
				log.Infof("configuration reloaded from %s", absPath)
				onChange(cfg)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("config watcher error: %v", watchErr)
			}
		}
	}()
	return nil
}
