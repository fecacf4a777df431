package processor

import (
	"fmt"

	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/mosaicnetworks/iterum/src/net"
)

// JacobiConfig describes the linear system Ax = b shared by every node.
// Partition lists the rows owned by each node; when empty, rows are split in
// contiguous blocks by node index.
type JacobiConfig struct {
	Matrix    [][]float64 `mapstructure:"matrix"`
	RHS       []float64   `mapstructure:"rhs"`
	Partition [][]int     `mapstructure:"partition"`
	Guess     []float64   `mapstructure:"guess"`
}

// Jacobi solves its rows of Ax = b with whatever values of the other rows it
// has received.
type Jacobi struct {
	a    [][]float64
	b    []float64
	x    []float64
	rows []int
	own  map[int]bool
}

// NewJacobi checks the system and picks the rows of topo.Index.
func NewJacobi(conf JacobiConfig, topo engine.Topology) (*Jacobi, error) {
	n := len(conf.Matrix)
	if n == 0 {
		return nil, fmt.Errorf("empty matrix")
	}
	for i, row := range conf.Matrix {
		if len(row) != n {
			return nil, fmt.Errorf("matrix row %d has %d columns, expected %d", i, len(row), n)
		}
	}
	if len(conf.RHS) != n {
		return nil, fmt.Errorf("rhs has %d entries, expected %d", len(conf.RHS), n)
	}

	var rows []int
	if len(conf.Partition) > 0 {
		if topo.Index < 0 || topo.Index >= len(conf.Partition) {
			return nil, errIndex("partition", topo.Index, len(conf.Partition))
		}
		rows = conf.Partition[topo.Index]
	} else {
		rows = blockRows(n, topo.Index, topo.Size)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("node %d owns no row", topo.Index)
	}

	own := make(map[int]bool, len(rows))
	for _, r := range rows {
		if r < 0 || r >= n {
			return nil, fmt.Errorf("row %d outside system of size %d", r, n)
		}
		if conf.Matrix[r][r] == 0 {
			return nil, fmt.Errorf("zero diagonal at row %d", r)
		}
		own[r] = true
	}

	x := make([]float64, n)
	if len(conf.Guess) == n {
		copy(x, conf.Guess)
	}

	return &Jacobi{
		a:    conf.Matrix,
		b:    conf.RHS,
		x:    x,
		rows: append([]int(nil), rows...),
		own:  own,
	}, nil
}

// blockRows splits n rows into size contiguous blocks, the first ones one row
// larger when n does not divide evenly.
func blockRows(n, index, size int) []int {
	if size <= 0 {
		size = 1
	}
	if index < 0 || index >= size {
		return nil
	}
	base, extra := n/size, n%size
	start := index*base + min(index, extra)
	count := base
	if index < extra {
		count++
	}
	rows := make([]int, count)
	for i := range rows {
		rows[i] = start + i
	}
	return rows
}

// InitialMessage implements engine.Processor.
func (j *Jacobi) InitialMessage() net.Message {
	return j.PrepareOutbound()
}

// ApplyUpdates implements engine.Processor. Received values of rows owned
// elsewhere are copied in, then every owned row is relaxed once against the
// same snapshot of x.
func (j *Jacobi) ApplyUpdates(batch []engine.Update) error {
	for _, u := range batch {
		for _, iv := range u.Message.Pairs() {
			if iv.Index < 0 || iv.Index >= len(j.x) || j.own[iv.Index] {
				continue
			}
			j.x[iv.Index] = iv.Value
		}
	}

	next := make([]float64, len(j.rows))
	for k, r := range j.rows {
		sum := j.b[r]
		for c, v := range j.a[r] {
			if c != r {
				sum -= v * j.x[c]
			}
		}
		next[k] = sum / j.a[r][r]
	}
	for k, r := range j.rows {
		j.x[r] = next[k]
	}
	return nil
}

// PrepareOutbound implements engine.Processor.
func (j *Jacobi) PrepareOutbound() net.Message {
	pairs := make([]net.IndexValue, len(j.rows))
	for k, r := range j.rows {
		pairs[k] = net.IndexValue{Index: r, Value: j.x[r]}
	}
	return net.MessageFromPairs(pairs...)
}

// CurrentSolution implements engine.Processor.
func (j *Jacobi) CurrentSolution() []float64 {
	res := make([]float64, len(j.rows))
	for k, r := range j.rows {
		res[k] = j.x[r]
	}
	return res
}

// FullState implements engine.Processor.
func (j *Jacobi) FullState() []float64 {
	return append([]float64(nil), j.x...)
}

// Rows returns the rows owned by this node.
func (j *Jacobi) Rows() []int {
	return append([]int(nil), j.rows...)
}
