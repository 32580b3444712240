package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the settings file when it changes on disk. Only tunables
// take effect live; backend selection and dimension changes still require a
// restart because stores are wired at startup.
type Watcher struct {
	fw       *fsnotify.Watcher
	onChange func(*Config)
	done     chan struct{}
}

// NewWatcher starts watching the settings file. onChange may be nil; the
// global configuration is replaced either way.
func NewWatcher(onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a direct file watch.
	if err := fw.Add(DataDir()); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:       fw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	settings := SettingsPath()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Name != settings {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load()
			if err != nil {
				log.Warn().Err(err).Msg("Settings reload failed, keeping previous configuration")
				continue
			}
			setGlobal(cfg)
			log.Info().
				Float64("similarity_threshold", cfg.Cache.SimilarityThreshold).
				Int("top_k", cfg.Cache.TopK).
				Msg("Settings reloaded")
			if w.onChange != nil {
				w.onChange(cfg)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Settings watcher error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
