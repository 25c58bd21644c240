package config

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wtthornton/homeiq-insight/pkg/shared/hotreload"
)

// Watch re-Loads path every time it changes on disk and hands the result
// to onReload, matching the "no process-wide mutable configuration
// once a run starts": the caller's onReload is expected to store the
// latest *Config somewhere it only reads from at the START of the next
// run (never mutate a config a run already has in hand), so a reload
// landing mid-run cannot perturb it.
func Watch(ctx context.Context, path string, log *logrus.Logger, onReload func(*Config, error)) (func() error, error) {
	watcher, err := hotreload.NewFileWatcher(path, log)
	if err != nil {
		return nil, err
	}
	go watcher.Watch(ctx, func() {
		cfg, err := Load(path)
		onReload(cfg, err)
	})
	return watcher.Close, nil
}
