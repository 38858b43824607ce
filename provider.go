package xctrl

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider hands out companion controllers: one per class key (Tier A) and a single
// engine-wide companion shared by every controller of the engine family (Tier B).
// Companions are created lazily and memoized.
type Provider struct {
	init func(b *Builder)

	mu      sync.Mutex
	classes map[string]*Controller
	engine  *Controller
}

// NewProvider returns a provider whose companions are built with init applied.
// Scope settings made by init are ignored; companions never have a companion.
func NewProvider(init func(b *Builder)) *Provider {
	return &Provider{
		init:    init,
		classes: make(map[string]*Controller),
	}
}

// Class returns the companion for key, creating it on first use.
func (p *Provider) Class(key string) *Controller {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.classes[key]; ok {
		return c
	}
	c := p.build("class:" + key)
	p.classes[key] = c
	return c
}

// For returns the companion of s's class.
func (p *Provider) For(s Scoped) *Controller {
	return p.Class(s.ScopeKey())
}

// Engine returns the engine-wide companion.
func (p *Provider) Engine() *Controller {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.engine == nil {
		p.engine = p.build("engine")
	}
	return p.engine
}

// Classes returns the keys of the class companions created so far.
func (p *Provider) Classes() []string {
	p.mu.Lock()
	keys := make([]string, 0, len(p.classes))
	for k := range p.classes {
		keys = append(keys, k)
	}
	p.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Reset empties every companion created so far.
func (p *Provider) Reset() {
	for _, c := range p.companions() {
		_ = c.Reset()
	}
}

// Close closes every companion created so far.
func (p *Provider) Close(ctx context.Context) error {
	var firstErr error
	for _, c := range p.companions() {
		if err := c.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Provider) companions() []*Controller {
	p.mu.Lock()
	out := make([]*Controller, 0, len(p.classes)+1)
	for _, c := range p.classes {
		out = append(out, c)
	}
	if p.engine != nil {
		out = append(out, p.engine)
	}
	p.mu.Unlock()
	return out
}

func (p *Provider) build(name string) *Controller {
	b := NewBuilder()
	if p.init != nil {
		p.init(b)
	}
	b.name = name
	b.companion = nil
	b.provider = nil
	b.classKey = ""
	b.engineScope = false
	b.companionRole = true

	c, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("xctrl: failed to build companion %q: %v", name, err))
	}
	return c
}
