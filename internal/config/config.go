package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/uthreads/internal/logging"
	"github.com/me/uthreads/internal/timer"
)

// Config holds the settings for a scheduler run.
type Config struct {
	QuantumUsecs int64  `yaml:"quantum_usecs"` // Quantum length in microseconds (default 10000)
	MaxThreads   int    `yaml:"max_threads"`   // Thread table capacity, main included (default 100)
	StackSize    int    `yaml:"stack_size"`    // Private stack bytes per thread (default 4096)
	Timer        string `yaml:"timer"`         // Timer driver: virtual, wall
	LogLevel     string `yaml:"log_level"`     // Log level: debug, info, warn, error
	LogFormat    string `yaml:"log_format"`    // Log format: text, json
	Journal      string `yaml:"journal"`       // SQLite journal path ("" disables, ":memory:" for testing)
	StatusAddr   string `yaml:"status_addr"`   // Status API listen address while running ("" disables)
	MaxQuanta    uint64 `yaml:"max_quanta"`    // Stop a workload after this many quanta (0 = unlimited)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QuantumUsecs: 10000,
		MaxThreads:   100,
		StackSize:    4096,
		Timer:        string(timer.KindVirtual),
		LogLevel:     "info",
		LogFormat:    "text",
		Journal:      DefaultJournalPath(),
	}
}

// DefaultJournalPath returns ~/.uthreads/journal.db, or a relative path when
// the home directory is unknown.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".uthreads", "journal.db")
	}
	return filepath.Join(home, ".uthreads", "journal.db")
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Load reads a YAML config file on top of the defaults. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Journal = expandHome(cfg.Journal)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML data onto cfg.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if c.QuantumUsecs <= 0 {
		errs = append(errs, fmt.Errorf("quantum_usecs must be positive, got %d", c.QuantumUsecs))
	}
	if c.MaxThreads < 1 {
		errs = append(errs, fmt.Errorf("max_threads must be at least 1, got %d", c.MaxThreads))
	}
	if c.StackSize <= 0 {
		errs = append(errs, fmt.Errorf("stack_size must be positive, got %d", c.StackSize))
	}
	switch timer.Kind(c.Timer) {
	case timer.KindVirtual, timer.KindWall:
	default:
		errs = append(errs, fmt.Errorf("timer must be %q or %q, got %q", timer.KindVirtual, timer.KindWall, c.Timer))
	}
	if !logging.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if !logging.ValidFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Quantum returns the quantum as a duration.
func (c Config) Quantum() time.Duration {
	return time.Duration(c.QuantumUsecs) * time.Microsecond
}

// TimerKind returns the configured timer driver kind.
func (c Config) TimerKind() timer.Kind {
	return timer.Kind(c.Timer)
}
