package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch processes files under dir that match pattern as they are created or
// written, until ctx is done. Rapid writes to one file are debounced into a
// single run.
func (p *Pipeline) Watch(ctx context.Context, dir, pattern, entityType string) error {
	if pattern == "" {
		pattern = "**/*.txt"
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid pattern %q", pattern)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, dir); err != nil {
		return err
	}
	p.logger.Info("watching inbox", zap.String("dir", dir), zap.String("pattern", pattern))

	ready := make(chan string, 16)
	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Reset(p.debounce)
			return
		}
		pending[path] = time.AfterFunc(p.debounce, func() {
			mu.Lock()
			delete(pending, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if event.Has(fsnotify.Create) {
					if err := addRecursive(watcher, event.Name); err != nil {
						p.logger.Warn("watch new directory failed", zap.String("dir", event.Name), zap.Error(err))
					}
				}
				continue
			}
			rel, err := filepath.Rel(dir, event.Name)
			if err != nil {
				continue
			}
			if match, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); !match {
				continue
			}
			p.logger.Debug("inbox event", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			schedule(event.Name)
		case path := <-ready:
			if _, err := p.ProcessFile(ctx, path, entityType, "inbox"); err != nil {
				p.logger.Warn("inbox file failed", zap.String("path", path), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}
