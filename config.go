package xctrl

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the typed configuration of a Controller.
type Config struct {
	// Name identifies the controller in logs.
	Name string `env:"XCTRL_NAME"`
	// MetaEmit wraps every dispatch in the MetaEvent envelope.
	MetaEmit bool `env:"XCTRL_META_EMIT" envDefault:"false"`
	// Verbose logs soft vetoes.
	Verbose bool `env:"XCTRL_VERBOSE" envDefault:"false"`
	// ObserverWorkers > 0 enables the async observer pool.
	ObserverWorkers int `env:"XCTRL_OBSERVER_WORKERS" envDefault:"0"`
	// ObserverBuffer is the observer pool queue size.
	ObserverBuffer int `env:"XCTRL_OBSERVER_BUFFER" envDefault:"1024"`
}

// Defaults returns a Config with inline observers and meta-emit off.
func Defaults() Config {
	return Config{
		ObserverBuffer: 1024,
	}
}

// Validate checks the Config.
func (c Config) Validate() error {
	if c.ObserverWorkers < 0 {
		return fmt.Errorf("%w: observer_workers must be >= 0, got %d", ErrInvalidConfig, c.ObserverWorkers)
	}
	if c.ObserverWorkers > 0 && c.ObserverBuffer < 1 {
		return fmt.Errorf("%w: observer_buffer must be >= 1, got %d", ErrInvalidConfig, c.ObserverBuffer)
	}
	return nil
}

// ConfigFromEnv loads the Config from XCTRL_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// ConfigFromMap converts a generic map into a Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	getString := func(k, d string) string {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
		return d
	}
	getInt := func(k string, d int) int {
		switch v := m[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return d
	}
	getBool := func(k string, d bool) bool {
		if v, ok := m[k].(bool); ok {
			return v
		}
		return d
	}

	def := Defaults()
	return Config{
		Name:            getString("name", def.Name),
		MetaEmit:        getBool("meta_emit", def.MetaEmit),
		Verbose:         getBool("verbose", def.Verbose),
		ObserverWorkers: getInt("observer_workers", def.ObserverWorkers),
		ObserverBuffer:  getInt("observer_buffer", def.ObserverBuffer),
	}
}
