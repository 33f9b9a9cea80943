package mmsconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"
)

// FileSource loads per-subscription carrier configs from a JSON file keyed
// by subscription id and pushes a wholesale refresh into the cache whenever
// the file changes. It stands in for the platform's carrier-config change
// broadcast on plain hosts.
type FileSource struct {
	path    string
	cache   *Cache
	watcher *fsnotify.Watcher
}

// NewFileSource creates a source for the given config file.
func NewFileSource(path string, cache *Cache) *FileSource {
	return &FileSource{path: path, cache: cache}
}

// Start performs the initial load and begins watching for changes. It
// returns after the first refresh; watching continues until ctx is done.
func (s *FileSource) Start(ctx context.Context) error {
	if err := s.loadAndRefresh(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	s.watcher = watcher

	// Watch the directory, not the file: editors and config management
	// tools replace the file, which drops a direct watch.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	go s.watchLoop(ctx)
	return nil
}

// Stop closes the watcher. The watch loop also exits when its context is
// canceled, so Stop is only needed for early teardown.
func (s *FileSource) Stop() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *FileSource) watchLoop(ctx context.Context) {
	defer s.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Carrier config watcher stopping")
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.InfoContext(ctx, "Carrier config file changed, refreshing", slog.String("path", s.path))
			if err := s.loadAndRefresh(ctx); err != nil {
				slog.ErrorContext(ctx, "Carrier config refresh failed", slog.Any("error", err))
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.ErrorContext(ctx, "Carrier config watcher error", slog.Any("error", err))
		}
	}
}

func (s *FileSource) loadAndRefresh(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read carrier config %s: %w", s.path, err)
	}

	var bySub map[string]map[string]any
	if err := json.Unmarshal(data, &bySub); err != nil {
		return fmt.Errorf("failed to parse carrier config %s: %w", s.path, err)
	}

	rawConfigs := make(map[int]map[string]any, len(bySub))
	for key, raw := range bySub {
		subID, err := strconv.Atoi(key)
		if err != nil {
			slog.WarnContext(ctx, "Ignoring non-numeric subscription key in carrier config", slog.String("key", key))
			continue
		}
		rawConfigs[subID] = raw
	}

	s.cache.RefreshAll(ctx, rawConfigs)
	return nil
}
