package cors

import "sync/atomic"

// Holder publishes the current Policy. Readers always see a fully built
// Policy; a reload replaces the whole snapshot.
type Holder struct {
	p atomic.Pointer[Policy]
}

// NewHolder returns a Holder serving p. A nil p serves an empty,
// non-relaxed policy that authorizes nothing.
func NewHolder(p *Policy) *Holder {
	h := &Holder{}
	h.Store(p)
	return h
}

// Load returns the current Policy.
func (h *Holder) Load() *Policy {
	return h.p.Load()
}

// Store replaces the current Policy.
func (h *Holder) Store(p *Policy) {
	if p == nil {
		p = NewPolicy(Options{})
	}
	h.p.Store(p)
}

// Evaluate evaluates r against the current Policy.
func (h *Holder) Evaluate(r Request) (Directives, bool) {
	return h.Load().Evaluate(r)
}
