package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/net"
	"github.com/mosaicnetworks/iterum/src/peers"
)

// fakeSubstrate is a scriptable substrate that records the calls it gets.
type fakeSubstrate struct {
	mu sync.Mutex

	connectFailures map[string]int
	connectAttempts map[string]int
	holdConnect     bool
	holdSubscribe   bool
	failPublish     bool

	calls     []string
	declared  []string
	published map[string][]net.Message
	queued    map[string][]net.Message
	dead      map[string]bool
	revive    bool
}

func newFakeSubstrate() *fakeSubstrate {
	return &fakeSubstrate{
		connectFailures: make(map[string]int),
		connectAttempts: make(map[string]int),
		published:       make(map[string][]net.Message),
		queued:          make(map[string][]net.Message),
		dead:            make(map[string]bool),
	}
}

func (f *fakeSubstrate) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeSubstrate) Connect(p peers.Peer) *common.Promise[bool] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect")
	f.connectAttempts[p.Name]++
	if f.holdConnect {
		return common.NewPromise[bool]()
	}
	if f.connectFailures[p.Name] < 0 || f.connectAttempts[p.Name] <= f.connectFailures[p.Name] {
		return common.Resolved(false)
	}
	return common.Resolved(true)
}

func (f *fakeSubstrate) DeclarePublication(tags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("declare")
	f.declared = append(f.declared, tags...)
	return nil
}

func (f *fakeSubstrate) Subscribe(tags ...string) *common.Promise[struct{}] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("subscribe")
	if f.holdSubscribe {
		return common.NewPromise[struct{}]()
	}
	if f.revive {
		for _, t := range tags {
			delete(f.dead, t)
		}
	}
	return common.Resolved(struct{}{})
}

func (f *fakeSubstrate) push(tag string, m net.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[tag] = append(f.queued[tag], m)
}

func (f *fakeSubstrate) HasData(tag string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued[tag]) > 0
}

// Latest returns the newest queued value and drops the rest, like a real
// substrate would.
func (f *fakeSubstrate) Latest(tag string) (net.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queued[tag]
	if len(q) == 0 {
		return nil, net.ErrNoData
	}
	m := q[len(q)-1]
	delete(f.queued, tag)
	return m, nil
}

func (f *fakeSubstrate) Publish(tag string, m net.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("publish")
	if f.failPublish {
		return errors.New("publish failed")
	}
	f.published[tag] = append(f.published[tag], m.Clone())
	return nil
}

func (f *fakeSubstrate) kill(tags ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tags {
		f.dead[t] = true
	}
}

func (f *fakeSubstrate) TagHasSubscription(tag string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead[tag]
}

func (f *fakeSubstrate) LocalAddr() string {
	return "fake"
}

func (f *fakeSubstrate) Close() error {
	return nil
}

func (f *fakeSubstrate) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSubstrate) publishedOn(tag string) []net.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]net.Message(nil), f.published[tag]...)
}

// vectorProcessor copies every received pair into a fixed size vector.
type vectorProcessor struct {
	state []float64
	own   int
	fail  bool
}

func (p *vectorProcessor) InitialMessage() net.Message {
	return net.Message{float64(p.own), p.state[p.own]}
}

func (p *vectorProcessor) ApplyUpdates(batch []Update) error {
	if p.fail {
		return errors.New("boom")
	}
	for _, u := range batch {
		for _, iv := range u.Message.Pairs() {
			if iv.Index < 0 || iv.Index >= len(p.state) || iv.Index == p.own {
				continue
			}
			p.state[iv.Index] = iv.Value
		}
	}
	return nil
}

func (p *vectorProcessor) PrepareOutbound() net.Message {
	return p.InitialMessage()
}

func (p *vectorProcessor) CurrentSolution() []float64 {
	return []float64{p.state[p.own]}
}

func (p *vectorProcessor) FullState() []float64 {
	return append([]float64(nil), p.state...)
}

type alwaysPublish struct{}

func (alwaysPublish) ShouldPublish(previous, candidate net.Message) bool { return true }

type neverPublish struct{}

func (neverPublish) ShouldPublish(previous, candidate net.Message) bool { return false }

// stopAfter stops after n iterations, or once the run time exceeds deadline
// when it is set.
type stopAfter struct {
	n        uint64
	deadline time.Duration
	calls    int
}

func (s *stopAfter) ShouldStop(iteration uint64, elapsed time.Duration) bool {
	s.calls++
	return iteration >= s.n || (s.deadline > 0 && elapsed > s.deadline)
}

// shiftRecorder is a stop policy that also records shifts.
type shiftRecorder struct {
	stopAfter
	shifts int
}

func (s *shiftRecorder) ObserveShift(previous, candidate net.Message) {
	s.shifts++
}

type scriptedResilience struct {
	actions []Action
	calls   [][]string
}

func (r *scriptedResilience) OnNoNeighborData(dead []string) Action {
	r.calls = append(r.calls, dead)
	if len(r.actions) == 0 {
		return ActionStop
	}
	a := r.actions[0]
	r.actions = r.actions[1:]
	return a
}
