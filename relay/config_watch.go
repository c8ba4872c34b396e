// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads the configuration whenever the file named by
// RELAY_CONFIG_FILE changes. Environment variables keep overriding the file.
type ConfigWatcher struct {
	environ  []string
	filename string
	onChange func(*Config)
	log      log.Logger

	watcher *fsnotify.Watcher
	last    []byte
	done    chan struct{}
}

// WatchConfig starts watching the configuration file named in the process
// environment. Each change that parses successfully is passed to onChange,
// which should apply only the settings that can change at runtime. It
// returns nil if no configuration file is set.
func WatchConfig(
	onChange func(*Config),
	logger *slog.Logger,
) (*ConfigWatcher, error) {
	return watchConfig(os.Environ(), onChange, logger)
}

func watchConfig(
	environ []string,
	onChange func(*Config),
	logger *slog.Logger,
) (*ConfigWatcher, error) {
	var filename string
	for _, env := range environ {
		if name, ok := strings.CutPrefix(env, ConfigFileEnv+"="); ok {
			filename = name
		}
	}
	if filename == "" {
		return nil, nil
	}

	last, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory so that editors replacing the file are seen.
	if err := watcher.Add(filepath.Dir(filename)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		environ:  environ,
		filename: filepath.Clean(filename),
		onChange: onChange,
		log:      log.Wrap(logger),
		watcher:  watcher,
		last:     last,
		done:     make(chan struct{}),
	}
	go cw.watch()
	return cw, nil
}

// Close stops watching.
func (cw *ConfigWatcher) Close() error {
	if cw == nil {
		return nil
	}
	err := cw.watcher.Close()
	<-cw.done
	return err
}

func (cw *ConfigWatcher) watch() {
	defer close(cw.done)
	ctx := context.Background()

	for {
		select {
		case evt, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != cw.filename ||
				!evt.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			cw.reload(ctx)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Debug(ctx, "configuration watch error",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (cw *ConfigWatcher) reload(ctx context.Context) {
	// Truncating writes are seen as an empty file first.
	data, err := os.ReadFile(cw.filename)
	if err != nil || len(data) == 0 || bytes.Equal(data, cw.last) {
		return
	}
	cw.last = data

	cfg, err := configFromEnviron(cw.environ)
	if err != nil {
		cw.log.Warn(ctx, err)
		return
	}
	cw.log.Info(ctx, "configuration file reloaded",
		slog.String("file", cw.filename),
	)
	if cw.onChange != nil {
		cw.onChange(cfg)
	}
}
