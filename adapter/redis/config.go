package redis

import (
	"fmt"
	"time"
)

// Config for the Redis fixed-window limiter.
type Config struct {
	// Connection
	Addr          string `env:"XCTRL_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Username      string `env:"XCTRL_REDIS_USERNAME"`
	Password      string `env:"XCTRL_REDIS_PASSWORD"`
	DB            int    `env:"XCTRL_REDIS_DB" envDefault:"0"`
	TLS           bool   `env:"XCTRL_REDIS_TLS" envDefault:"false"`
	TLSServerName string `env:"XCTRL_REDIS_TLS_SERVER_NAME"`

	// Throttling
	Prefix string        `env:"XCTRL_THROTTLE_PREFIX" envDefault:"xctrl:throttle:"`
	Limit  int64         `env:"XCTRL_THROTTLE_LIMIT" envDefault:"10"`
	Window time.Duration `env:"XCTRL_THROTTLE_WINDOW" envDefault:"1m"`
	Events []string      `env:"XCTRL_THROTTLE_EVENTS" envSeparator:","`
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:   "127.0.0.1:6379",
		Prefix: "xctrl:throttle:",
		Limit:  10,
		Window: time.Minute,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Limit < 1 {
		return fmt.Errorf("config: limit must be >= 1, got %d", c.Limit)
	}
	if c.Window < time.Millisecond {
		return fmt.Errorf("config: window must be >= 1ms, got %v", c.Window)
	}
	return nil
}

// toMap converts Config to generic map for the limiter factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":            c.Addr,
		"username":        c.Username,
		"password":        c.Password,
		"db":              c.DB,
		"tls":             c.TLS,
		"tls_server_name": c.TLSServerName,
		"prefix":          c.Prefix,
		"limit":           c.Limit,
		"window":          c.Window,
		"events":          c.Events,
	}
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := m["db"].(int); ok {
		c.DB = v
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	if v, ok := m["prefix"].(string); ok && v != "" {
		c.Prefix = v
	}
	switch v := m["limit"].(type) {
	case int:
		if v > 0 {
			c.Limit = int64(v)
		}
	case int64:
		if v > 0 {
			c.Limit = v
		}
	}
	switch v := m["window"].(type) {
	case time.Duration:
		if v > 0 {
			c.Window = v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Window = d
		}
	}
	if v, ok := m["events"].([]string); ok {
		c.Events = v
	}

	return c
}
