package engine

import (
	"sort"

	"github.com/mosaicnetworks/iterum/src/net"
)

// NeighborData is the latest message seen on each subscribed tag. It only ever
// holds tags it was created with, and an entry is dropped only by Forget.
type NeighborData struct {
	subscribed map[string]bool
	latest     map[string]net.Message
}

// NewNeighborData creates an empty cache for the given tags.
func NewNeighborData(tags []string) *NeighborData {
	subscribed := make(map[string]bool, len(tags))
	for _, t := range tags {
		subscribed[t] = true
	}
	return &NeighborData{
		subscribed: subscribed,
		latest:     make(map[string]net.Message),
	}
}

// Put overwrites the value of tag. It reports false, and stores nothing, for
// a tag that is not subscribed.
func (n *NeighborData) Put(tag string, m net.Message) bool {
	if !n.subscribed[tag] {
		return false
	}
	n.latest[tag] = m.Clone()
	return true
}

// Get returns a copy of the latest value of tag.
func (n *NeighborData) Get(tag string) (net.Message, bool) {
	m, ok := n.latest[tag]
	return m.Clone(), ok
}

// Forget drops tags for good.
func (n *NeighborData) Forget(tags ...string) {
	for _, t := range tags {
		delete(n.subscribed, t)
		delete(n.latest, t)
	}
}

// Tags lists the tags still tracked, sorted.
func (n *NeighborData) Tags() []string {
	res := make([]string, 0, len(n.subscribed))
	for t := range n.subscribed {
		res = append(res, t)
	}
	sort.Strings(res)
	return res
}

// Len is the number of tags holding a value.
func (n *NeighborData) Len() int {
	return len(n.latest)
}

// Copy returns a snapshot of every held value.
func (n *NeighborData) Copy() map[string]net.Message {
	res := make(map[string]net.Message, len(n.latest))
	for t, m := range n.latest {
		res[t] = m.Clone()
	}
	return res
}
