package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and invokes onChange with the reloaded config on every
// write/create event. Reload failures go to onError and the previous config
// stays in effect. It blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(AppConfig), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadWithEnvOverrides(path)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onChange != nil {
				onChange(cfg)
			}
			// 编辑器原子保存会替换 inode，重新加入监听
			_ = watcher.Add(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
