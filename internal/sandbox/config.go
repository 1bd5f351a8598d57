package sandbox

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes the sandbox limits and the virtual endpoints the host
// chooses to honor. Limits are enforced here, outside the shim APIs; the
// shim only ever observes grow failures.
type Config struct {
	// Pages is the initial linear memory size in 64 KiB pages.
	Pages uint32 `yaml:"pages"`
	// MaxPages is the memory-grow ceiling in pages.
	MaxPages uint32 `yaml:"max_pages"`
	// Endpoints maps virtual path names honored by fopen to host stream ids.
	// Any path not listed here fails to open.
	Endpoints map[string]int32 `yaml:"endpoints"`
	// FixedClock, when set, pins both clocks for deterministic runs.
	FixedClock *FixedClockConfig `yaml:"fixed_clock,omitempty"`
}

// FixedClockConfig pins the time capability to constant values.
type FixedClockConfig struct {
	Seconds int64 `yaml:"seconds"`
	Ticks   int64 `yaml:"ticks"`
}

// DefaultConfig returns the configuration used when no file is given:
// 16 pages (1 MiB) growable to 1024 pages (64 MiB), with the two standard
// output endpoints.
func DefaultConfig() Config {
	return Config{
		Pages:    16,
		MaxPages: 1024,
		Endpoints: map[string]int32{
			"/dev/stdout": StreamStdout,
			"/dev/stderr": StreamStderr,
		},
	}
}

// LoadConfig reads a YAML config file, applying defaults for absent fields.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the limits for internal consistency.
func (c Config) Validate() error {
	if c.Pages == 0 {
		return fmt.Errorf("pages must be at least 1")
	}
	if c.MaxPages < c.Pages {
		return fmt.Errorf("max_pages %d below pages %d", c.MaxPages, c.Pages)
	}
	return nil
}
