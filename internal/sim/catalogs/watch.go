package catalogs

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the catalogs in configDir whenever one of their files changes and swaps
// the result into reg. A reload that fails validation keeps the previous catalogs.
// It blocks until ctx is done.
func Watch(ctx context.Context, configDir string, reg *Registry, logger *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(configDir); err != nil {
		return err
	}

	watched := map[string]bool{}
	for _, f := range Files() {
		watched[f] = true
	}

	// Editors tend to write in bursts; coalesce them.
	const debounce = 250 * time.Millisecond
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !watched[name] || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			pending = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("catalog watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			c, err := Load(configDir)
			if err != nil {
				logger.Warn("catalog reload rejected", zap.Error(err))
				continue
			}
			reg.Swap(c)
			logger.Info("catalogs reloaded", zap.String("dir", configDir), zap.String("block_tags", shortDigest(c.BlockTags.Digest)))
		}
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return strings.TrimSpace(d)
}
