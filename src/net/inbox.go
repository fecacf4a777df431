package net

import (
	"sync"
)

// slot holds the latest value of one subscribed tag.
type slot struct {
	value    Message
	epoch    int64
	seq      uint64
	hasValue bool
	fresh    bool
	alive    bool
}

// inbox is the per-node store of subscribed tags. Every substrate funnels its
// deliveries through one, which gives all of them the same per tag
// last-write-wins semantics.
type inbox struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func newInbox() *inbox {
	return &inbox{
		slots: make(map[string]*slot),
	}
}

// watch starts tracking tag. A tag that is already tracked keeps its state, so
// re-subscribing to a dead tag does not revive it until its publisher answers.
func (i *inbox) watch(tag string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.slots[tag]; !ok {
		i.slots[tag] = &slot{alive: true}
	}
}

func (i *inbox) subscribed(tag string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, ok := i.slots[tag]
	return ok
}

// deliver stores a value unless it is older than the one already held. It
// reports whether the value was kept.
func (i *inbox) deliver(tag string, epoch int64, seq uint64, values []float64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.slots[tag]
	if !ok {
		return false
	}

	if s.hasValue {
		f := Frame{Epoch: epoch, Seq: seq}
		if !f.newer(s.epoch, s.seq) {
			return false
		}
	}

	s.value = Message(values).Clone()
	s.epoch = epoch
	s.seq = seq
	s.hasValue = true
	s.fresh = true
	s.alive = true

	return true
}

func (i *inbox) hasData(tag string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.slots[tag]
	return ok && s.fresh
}

func (i *inbox) latest(tag string) (Message, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.slots[tag]
	if !ok {
		return nil, ErrNotSubscribed
	}
	if !s.fresh {
		return nil, ErrNoData
	}
	s.fresh = false
	return s.value.Clone(), nil
}

func (i *inbox) alive(tag string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.slots[tag]
	return ok && s.alive
}

func (i *inbox) revive(tag string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if s, ok := i.slots[tag]; ok {
		s.alive = true
	}
}

// end marks tag as permanently ended, unless a value from a later epoch has
// already been seen.
func (i *inbox) end(tag string, epoch int64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.slots[tag]
	if !ok {
		return false
	}
	if s.hasValue && s.epoch > epoch {
		return false
	}
	s.alive = false
	return true
}

func (i *inbox) tags() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	res := make([]string, 0, len(i.slots))
	for tag := range i.slots {
		res = append(res, tag)
	}
	return res
}
