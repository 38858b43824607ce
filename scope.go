package xctrl

// Companion returns the shared controller consulted before this controller's own
// records, or nil when the controller is unscoped.
func (c *Controller) Companion() *Controller { return c.companion }

// records resolves the records that take part in a stage: the companion chain first,
// then the local ones. For the concurrent stages this only fixes enumeration order;
// for the middleware stages it makes the whole companion chain run before the local one.
// A closed companion, and everything beneath it, no longer contributes records.
func (c *Controller) records(stage Stage, event string) []*EventRecord {
	local := c.reg.snapshot(stage, event)
	if c.companion == nil || c.companion.closed.Load() {
		return local
	}
	shared := c.companion.records(stage, event)
	switch {
	case len(shared) == 0:
		return local
	case len(local) == 0:
		return shared
	}
	out := make([]*EventRecord, 0, len(shared)+len(local))
	out = append(out, shared...)
	return append(out, local...)
}

// Scoped is implemented by types that name the class scope their controllers share.
type Scoped interface {
	ScopeKey() string
}
