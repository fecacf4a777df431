package trace

import (
	"sort"
	"sync"
)

// InmemRecorder keeps records in memory.
type InmemRecorder struct {
	sync.RWMutex
	records map[string]map[string][]Record
}

// NewInmemRecorder ...
func NewInmemRecorder() *InmemRecorder {
	return &InmemRecorder{
		records: make(map[string]map[string][]Record),
	}
}

// Append implements Recorder.
func (r *InmemRecorder) Append(rec Record) error {
	r.Lock()
	defer r.Unlock()

	nodes, ok := r.records[rec.Run]
	if !ok {
		nodes = make(map[string][]Record)
		r.records[rec.Run] = nodes
	}
	rec.Solution = append([]float64(nil), rec.Solution...)
	nodes[rec.Node] = append(nodes[rec.Node], rec)
	return nil
}

// Records implements Recorder. Records come back in iteration order.
func (r *InmemRecorder) Records(run, node string) ([]Record, error) {
	r.RLock()
	defer r.RUnlock()

	res := append([]Record(nil), r.records[run][node]...)
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Iteration < res[j].Iteration
	})
	return res, nil
}

// Runs implements Recorder.
func (r *InmemRecorder) Runs() ([]string, error) {
	r.RLock()
	defer r.RUnlock()

	res := make([]string, 0, len(r.records))
	for run := range r.records {
		res = append(res, run)
	}
	sort.Strings(res)
	return res, nil
}

// Close implements Recorder.
func (r *InmemRecorder) Close() error {
	return nil
}
