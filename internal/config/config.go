// Package config loads the proxy's single YAML configuration document
// and optionally watches it for hot-reloadable changes. Duration- and
// size-like fields accept suffixed strings ("30s", "10MB").
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/a3ak/suffix"
	"github.com/a3ak/circuitbreaker"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/relaycraft/multimc/internal/logging"
)

// Backend is one configured simulation server.
type Backend struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// AdminConfig configures the operator status/metrics listener.
type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	MetricPath string `yaml:"metric_path"`
}

// PersistenceConfig configures the position store.
type PersistenceConfig struct {
	Path         string `yaml:"path"`
	SaveInterval string `yaml:"save_interval"`
}

// ZoneEntryConfig is one zone.StaticZoner rule.
type ZoneEntryConfig struct {
	Backend  string `yaml:"backend"`
	MinX     int32  `yaml:"min_x"`
	MinZ     int32  `yaml:"min_z"`
	MaxX     int32  `yaml:"max_x"`
	MaxZ     int32  `yaml:"max_z"`
	Inverted bool   `yaml:"inverted"`
}

// ZoningConfig selects and configures a zone.Zoner.
type ZoningConfig struct {
	Strategy string            `yaml:"strategy"` // "static" (default) or "rendezvous"
	Zones    []ZoneEntryConfig `yaml:"zones"`
	Default  string            `yaml:"default"`
}

// Config is the root document.
type Config struct {
	Protocol             int32    `yaml:"protocol"`
	ProxyAddress         string   `yaml:"proxy_address"`
	SimulationServers    []Backend `yaml:"simulation_servers"`
	MaxPlayers           int      `yaml:"max_players"`
	MOTD                 string   `yaml:"motd"`
	DisplayVersion       string   `yaml:"display_version"`
	Brand                string   `yaml:"brand"`
	CompressionThreshold int      `yaml:"compression_threshold"`
	Operators            []string `yaml:"operators"`

	Zoning ZoningConfig `yaml:"zoning"`

	Logging        logging.Config                    `yaml:"logging"`
	Admin          AdminConfig                        `yaml:"admin"`
	CircuitBreaker circuitbreaker.CircuitBreakerConf   `yaml:"circuit_breaker"`
	Persistence    PersistenceConfig                   `yaml:"persistence"`
}

// Load reads and decodes path, applying defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	setDefaults(&cfg)
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Protocol == 0 {
		cfg.Protocol = 754
	}
	if cfg.ProxyAddress == "" {
		cfg.ProxyAddress = ":25565"
	}
	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = 20
	}
	if cfg.MOTD == "" {
		cfg.MOTD = "A Multi-Backend Server"
	}
	if cfg.Brand == "" {
		cfg.Brand = "multimc"
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = "./multimc.log"
	}
	if r, err := suffix.ToMB(cfg.Logging.MaxSize); err != nil || r == 0 {
		cfg.Logging.MaxSize = "10MB"
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.FileLevel == "" {
		cfg.Logging.FileLevel = "info"
	}
	if cfg.Admin.ListenAddr == "" {
		cfg.Admin.ListenAddr = ":9090"
	}
	if cfg.Admin.MetricPath == "" {
		cfg.Admin.MetricPath = "/metrics"
	}
	if cfg.Persistence.Path == "" {
		cfg.Persistence.Path = "./positions.yaml"
	}
	if cfg.Persistence.SaveInterval == "" {
		cfg.Persistence.SaveInterval = "30s"
	}
	if cfg.Zoning.Strategy == "" {
		cfg.Zoning.Strategy = "static"
	}
}

const defaultSaveInterval = 30 * time.Second

// SaveInterval converts Persistence.SaveInterval to a time.Duration.
func (c *Config) SaveInterval() time.Duration {
	secs, err := suffix.ToSeconds(c.Persistence.SaveInterval)
	if err != nil || secs == 0 {
		return defaultSaveInterval
	}
	return time.Duration(secs) * time.Second
}

// Watcher re-parses a config file on every write and passes the result
// to its onReload callback; the Watcher itself applies nothing. The
// process entrypoint re-applies only the logging block; other fields
// take effect after a restart. simulation_servers and proxy_address
// changes are detected and logged as requiring a restart, since swapping the
// backend set or listen address at runtime would leave in-flight
// mapping.Tables state pointing at backends that no longer exist.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onReload func(*Config)
}

// WatchConfig starts watching path for changes, invoking onReload with
// the newly parsed Config on every write.
func WatchConfig(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{path: path, watcher: fw, onReload: onReload}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logging.L().Warningf("config: reload failed: %v", err)
				continue
			}
			logging.L().Infof("config: reloaded %s", w.path)
			w.onReload(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.L().Warningf("config: watcher error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// CheckRestartRequired compares old and new for fields that cannot be
// hot-reloaded, logging a warning for each that changed.
func CheckRestartRequired(old, new *Config) {
	if old.ProxyAddress != new.ProxyAddress {
		logging.L().Warningf("config: proxy_address changed but requires a restart to take effect")
	}
	if len(old.SimulationServers) != len(new.SimulationServers) {
		logging.L().Warningf("config: simulation_servers changed but requires a restart to take effect")
		return
	}
	for i := range old.SimulationServers {
		if old.SimulationServers[i] != new.SimulationServers[i] {
			logging.L().Warningf("config: simulation_servers changed but requires a restart to take effect")
			return
		}
	}
}
