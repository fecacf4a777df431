package trace

import (
	"bytes"
	"time"

	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/ugorji/go/codec"
)

// Record is the trace of one iteration of one node.
type Record struct {
	Run       string
	Node      string
	Iteration uint64
	RunTime   time.Duration
	Published bool
	BatchSize int
	Solution  []float64
}

// Recorder stores records.
type Recorder interface {
	Append(Record) error
	Records(run, node string) ([]Record, error)
	Runs() ([]string, error)
	Close() error
}

// Observer turns a recorder into an engine observer. Append errors are
// reported to onErr, if set, and never stop the engine.
func Observer(r Recorder, run string, onErr func(error)) engine.Observer {
	return func(s engine.Snapshot) {
		err := r.Append(Record{
			Run:       run,
			Node:      s.Node,
			Iteration: s.Iteration,
			RunTime:   s.RunTime,
			Published: s.Published,
			BatchSize: s.BatchSize,
			Solution:  s.Solution,
		})
		if err != nil && onErr != nil {
			onErr(err)
		}
	}
}

var recordHandle = new(codec.MsgpackHandle)

// Marshal ...
func (r *Record) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, recordHandle)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal ...
func (r *Record) Unmarshal(data []byte) error {
	dec := codec.NewDecoderBytes(data, recordHandle)
	return dec.Decode(r)
}
