package config

import "sync/atomic"

// PolicyHolder shares the active policy between components and lets the
// watcher swap it without locking readers.
type PolicyHolder struct {
	p atomic.Pointer[Policy]
}

// NewPolicyHolder returns a holder seeded with p.
func NewPolicyHolder(p *Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.p.Store(p)
	return h
}

// Get returns the active policy.
func (h *PolicyHolder) Get() *Policy {
	return h.p.Load()
}

// Set replaces the active policy. Callers must validate p first.
func (h *PolicyHolder) Set(p *Policy) {
	h.p.Store(p)
}
