package broker

import "github.com/pscheid92/hashpipe/internal/domain"

// TransformFunc derives the next authoritative state from the current one and the
// pending update. Returning nil drops the pending update without broadcasting.
type TransformFunc func(current, pending domain.StateDocument) domain.StateDocument

// Identity is the default transform: the pending update replaces current wholesale.
func Identity(_, pending domain.StateDocument) domain.StateDocument {
	return pending
}

// coalescer holds at most one pending update. It is idle when pending is nil.
type coalescer struct {
	transform TransformFunc
	current   domain.StateDocument
	pending   domain.StateDocument
}

func newCoalescer(transform TransformFunc) *coalescer {
	if transform == nil {
		transform = Identity
	}
	return &coalescer{transform: transform}
}

// offer buffers doc, replacing any unconsumed update. Reports whether one was replaced.
func (c *coalescer) offer(doc domain.StateDocument) bool {
	replaced := c.pending != nil
	c.pending = doc
	return replaced
}

// next computes the promotion candidate without committing it.
func (c *coalescer) next() (domain.StateDocument, bool) {
	if c.pending == nil {
		return nil, false
	}
	return c.transform(c.current, c.pending), true
}

// commit makes doc current and returns to idle.
func (c *coalescer) commit(doc domain.StateDocument) {
	c.current = doc
	c.pending = nil
}

// discard drops the pending update and keeps current.
func (c *coalescer) discard() {
	c.pending = nil
}

func (c *coalescer) hasCurrent() bool {
	return c.current != nil
}
