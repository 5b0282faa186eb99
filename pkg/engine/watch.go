package engine

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"warden/pkg/config"
	"warden/pkg/emotion"
)

// WatchConfig hot-reloads the emotional tuning when the config file in home
// changes. Only tuning is reloadable; socket, database, and workspace paths
// are fixed for the life of the daemon. Returns false if the watcher could
// not be started (the engine then runs with its boot-time config).
func (e *Engine) WatchConfig(done <-chan struct{}, home string) bool {
	if _, err := os.Stat(home); err != nil {
		return false
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("warden: config watcher: %v", err)
		return false
	}
	if err := watcher.Add(home); err != nil {
		_ = watcher.Close()
		log.Printf("warden: watch %s: %v", home, err)
		return false
	}

	go func() {
		defer watcher.Close()
		// Debounce: editors fire several events per save.
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		defer debounce.Stop()

		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isConfigFile(event.Name) {
					continue
				}
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(100 * time.Millisecond)
			case <-debounce.C:
				e.reloadTuning(home)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("warden: config watcher: %v", err)
			}
		}
	}()
	return true
}

func isConfigFile(path string) bool {
	switch filepath.Base(path) {
	case "warden.toml", "warden.yaml", "warden.yml":
		return true
	default:
		return false
	}
}

func (e *Engine) reloadTuning(home string) {
	cfg, err := config.Load(home)
	if err != nil {
		log.Printf("warden: reload config: %v", err)
		return
	}
	tuning, err := TuningFromConfig(cfg)
	if err != nil {
		log.Printf("warden: reload config: %v", err)
		return
	}
	e.core.SetTuning(tuning)
	log.Printf("warden: tuning reloaded from %s", home)
}

// TuningFromConfig maps the file-level emotion section onto the core's
// tuning constants.
func TuningFromConfig(cfg config.Config) (emotion.Tuning, error) {
	halfLife, err := cfg.DecayHalfLifeDuration()
	if err != nil {
		return emotion.Tuning{}, err
	}
	return emotion.Tuning{
		ElasticityFactor: cfg.Emotion.ElasticityFactor,
		MaxTrustStep:     cfg.Emotion.MaxTrustStep,
		DecayHalfLife:    halfLife,
	}, nil
}
