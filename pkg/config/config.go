// Package config loads Portal and Router configuration from YAML, merging
// the loaded values over built-in defaults the way the teacher merges
// chart values over defaults, and optionally watches the file for changes.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/imdario/mergo"
	logging "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Transport names the socket transport a Portal or Router endpoint uses
// (spec §6 "External Interfaces").
type Transport string

const (
	TransportInproc Transport = "inproc"
	TransportIPC    Transport = "ipc"
	TransportTCP    Transport = "tcp"
	TransportPGM    Transport = "pgm"
	TransportEPGM   Transport = "epgm"
)

// Portal is a Portal's file-based configuration.
type Portal struct {
	PlatformID             string    `yaml:"platform_id"`
	ManagerAddr            string    `yaml:"manager_addr"`
	Transport              Transport `yaml:"transport"`
	SendQueueHighWaterMark int       `yaml:"send_queue_high_water_mark"`
	RecvQueueHighWaterMark int       `yaml:"receive_queue_high_water_mark"`
	ManagerTimeoutSeconds  int       `yaml:"manager_timeout_seconds"`
	// Echo, if true, lets this Portal receive its own publications back
	// from the Router instead of dropping them (spec §9 "Cyclic forwarding
	// avoidance").
	Echo bool `yaml:"echo"`
}

// DefaultPortal holds the built-in defaults every loaded Portal config is
// merged over.
var DefaultPortal = Portal{
	PlatformID:             "unnamed-platform",
	ManagerAddr:            "127.0.0.1:11142",
	Transport:              TransportTCP,
	SendQueueHighWaterMark: 10000,
	RecvQueueHighWaterMark: 10000,
	ManagerTimeoutSeconds:  2,
}

// Router is a Router's file-based configuration.
type Router struct {
	PublishAddr   string `yaml:"publish_addr"`
	SubscribeAddr string `yaml:"subscribe_addr"`
	ManagerAddr   string `yaml:"manager_addr"`
}

// DefaultRouter holds the built-in defaults every loaded Router config is
// merged over.
var DefaultRouter = Router{
	PublishAddr:   "127.0.0.1:0",
	SubscribeAddr: "127.0.0.1:0",
	ManagerAddr:   "127.0.0.1:11142",
}

// LoadPortal reads path, unmarshals it as YAML, and merges it over
// DefaultPortal — fields the file omits keep their default value.
func LoadPortal(path string) (Portal, error) {
	cfg := DefaultPortal
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Portal{}, fmt.Errorf("config: reading portal config %s: %w", path, err)
	}
	var loaded Portal
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return Portal{}, fmt.Errorf("config: parsing portal config %s: %w", path, err)
	}
	if err := mergo.Merge(&loaded, cfg); err != nil {
		return Portal{}, fmt.Errorf("config: merging portal config %s: %w", path, err)
	}
	return loaded, nil
}

// LoadRouter reads path, unmarshals it as YAML, and merges it over
// DefaultRouter.
func LoadRouter(path string) (Router, error) {
	cfg := DefaultRouter
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Router{}, fmt.Errorf("config: reading router config %s: %w", path, err)
	}
	var loaded Router
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return Router{}, fmt.Errorf("config: parsing router config %s: %w", path, err)
	}
	if err := mergo.Merge(&loaded, cfg); err != nil {
		return Router{}, fmt.Errorf("config: merging router config %s: %w", path, err)
	}
	return loaded, nil
}

// PortalWatcher re-loads a Portal config whenever its file changes on disk
// and delivers each reload to onChange. The high-water-mark fields are
// loaded and reloaded, but no socket in this module reads them, so a
// changed value affects neither open sockets nor ones opened later.
type PortalWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	log      *logging.Entry
	mu       sync.Mutex
	current  Portal
}

// WatchPortal starts watching path for changes, invoking onChange (with the
// freshly merged config) once per write event. Call Close to stop.
func WatchPortal(path string, onChange func(Portal)) (*PortalWatcher, error) {
	cfg, err := LoadPortal(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	if path != "" {
		if err := w.Add(path); err != nil {
			w.Close()
			return nil, fmt.Errorf("config: watching %s: %w", path, err)
		}
	}

	pw := &PortalWatcher{
		path:    path,
		watcher: w,
		log:     logging.WithField("component", "config-watcher"),
		current: cfg,
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := LoadPortal(path)
				if err != nil {
					pw.log.WithError(err).Warn("config reload failed, keeping previous value")
					continue
				}
				pw.mu.Lock()
				pw.current = reloaded
				pw.mu.Unlock()
				if onChange != nil {
					onChange(reloaded)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				pw.log.WithError(err).Warn("config watcher error")
			}
		}
	}()

	return pw, nil
}

// Current returns the most recently loaded configuration.
func (w *PortalWatcher) Current() Portal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close stops the watcher.
func (w *PortalWatcher) Close() error {
	return w.watcher.Close()
}
