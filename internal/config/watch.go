package config

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// Watcher re-reads the config file whenever it changes on disk and hands
// every valid result to OnChange. Invalid edits are logged and skipped, so
// the last good configuration stays in effect.
type Watcher struct {
	v        *viper.Viper
	onChange func(*Config)
	logger   *slog.Logger
}

// Watch starts watching the config file at configPath. A config file must
// exist; there is nothing to watch when running on defaults and environment
// variables alone.
func Watch(configPath string, logger *slog.Logger, onChange func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	w := &Watcher{v: v, onChange: onChange, logger: logger}
	v.OnConfigChange(w.handle)
	v.WatchConfig()
	logger.Info("watching config file", "path", v.ConfigFileUsed())
	return w, nil
}

func (w *Watcher) handle(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := decode(w.v)
	if err != nil {
		w.logger.Warn("ignoring invalid config change", "path", e.Name, "error", err)
		return
	}
	w.logger.Info("config file changed", "path", e.Name)
	w.onChange(cfg)
}

// ReloadBindings returns an OnChange callback that swaps the resolver's
// role and binding tables. The principal is fixed for the process lifetime
// and changes to it are ignored with a warning.
func ReloadBindings(current *Config, resolver *registry.Resolver, logger *slog.Logger) func(*Config) {
	principal := current.Registry.Principal
	return func(cfg *Config) {
		if cfg.Registry.Principal != principal {
			logger.Warn("registry.principal cannot change at runtime; restart to apply",
				"configured", cfg.Registry.Principal, "active", principal)
		}
		if err := cfg.Registry.ApplyTo(resolver); err != nil {
			logger.Error("failed to reload role bindings", "error", err)
			return
		}
		logger.Info("role bindings reloaded", "bindings", len(cfg.Registry.Bindings))
	}
}
