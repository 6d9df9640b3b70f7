// Package logging wraps the process-wide structured logger used by every
// other package: a single package-level *logger.Logger built once from
// config, with everything else calling L() rather than holding their own
// reference.
package logging

import (
	"github.com/a3ak/suffix"
	"github.com/nir0k/logger"
)

// Config is the logging block of the proxy's configuration.
type Config struct {
	FilePath        string   `yaml:"file_path"`
	MaxSize         string   `yaml:"max_size"`
	MaxBackups      int      `yaml:"max_backups"`
	ConsoleLevel    string   `yaml:"console_level"`
	FileLevel       string   `yaml:"file_level"`
	ExcludeRequests []string `yaml:"exclude_requests"`
}

var global *logger.Logger

func init() {
	global = &logger.Logger{}
}

// Init builds the process-wide logger from cfg. Call once at startup,
// before any other package logs.
func Init(cfg Config) error {
	consoleLevel := cfg.ConsoleLevel
	if consoleLevel == "" {
		consoleLevel = "info"
	}

	conf := logger.LogConfig{
		FilePath:      cfg.FilePath,
		Format:        "standard",
		FileLevel:     cfg.FileLevel,
		ConsoleLevel:  consoleLevel,
		ConsoleOutput: true,
		EnableRotation: cfg.FilePath != "",
		RotationConfig: logger.RotationConfig{
			MaxSize:    int(suffix.UnsafeToMB(cfg.MaxSize)),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     7,
			Compress:   true,
		},
	}

	l, err := logger.NewLogger(conf)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// L returns the process-wide logger. Safe to call before Init (logs are
// simply discarded until Init configures a real sink).
func L() *logger.Logger {
	return global
}
