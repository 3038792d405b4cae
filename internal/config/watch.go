package config

import (
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher keeps the current Policy in step with the config file. Readers
// always get a complete snapshot.
type Watcher struct {
	v       *viper.Viper
	log     *slog.Logger
	current atomic.Pointer[Policy]
}

// NewWatcher starts from initial. Call Watch to follow file changes.
func NewWatcher(v *viper.Viper, initial Policy, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{v: v, log: logger}
	w.current.Store(&initial)
	return w
}

// Current returns the active policy.
func (w *Watcher) Current() Policy {
	return *w.current.Load()
}

// Watch reloads the policy whenever the config file changes. It is a no-op
// when no config file was read.
func (w *Watcher) Watch() {
	if w.v.ConfigFileUsed() == "" {
		w.log.Debug("no config file in use, hot reload disabled")
		return
	}
	w.v.OnConfigChange(w.handle)
	w.v.WatchConfig()
}

func (w *Watcher) handle(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}

	cfg, err := LoadFrom(w.v)
	if err != nil {
		w.log.Error("config reload rejected, keeping previous settings", "file", e.Name, "error", err)
		return
	}

	p := cfg.Policy()
	w.current.Store(&p)
	w.log.Info("configuration reloaded",
		"file", e.Name,
		"whitelist_prefixes", p.Whitelist.Len(),
		"queue_offline_items", p.QueueOfflineItems,
		"default_secret", cfg.UsesDefaultSecret())
}
