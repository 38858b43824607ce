package xctrl

import (
	"sync"
)

var (
	defaultProvider   *Provider
	defaultProviderMu sync.Mutex
)

// Default returns the process-wide Provider, creating it on first use.
func Default() *Provider {
	defaultProviderMu.Lock()
	defer defaultProviderMu.Unlock()

	if defaultProvider == nil {
		defaultProvider = NewProvider(nil)
	}
	return defaultProvider
}

// SetDefault replaces the process-wide Provider.
func SetDefault(p *Provider) {
	if p == nil {
		panic("xctrl: SetDefault called with nil Provider")
	}
	defaultProviderMu.Lock()
	defaultProvider = p
	defaultProviderMu.Unlock()
}

// Class is the Facade for Default().Class.
func Class(key string) *Controller {
	return Default().Class(key)
}

// Engine is the Facade for Default().Engine.
func Engine() *Controller {
	return Default().Engine()
}

// Reset is the Facade for Default().Reset.
func Reset() {
	Default().Reset()
}
