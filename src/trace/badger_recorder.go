package trace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger"
)

const tracePrefix = "trace"

// BadgerRecorder stores records in a badger database, under keys
// trace/<run>/<node>/<iteration> with the iteration zero-padded so that keys
// sort in iteration order.
type BadgerRecorder struct {
	db   *badger.DB
	path string
}

// NewBadgerRecorder opens or creates the database at path.
func NewBadgerRecorder(path string) (*BadgerRecorder, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerRecorder{
		db:   handle,
		path: path,
	}, nil
}

// Path ...
func (r *BadgerRecorder) Path() string {
	return r.path
}

func recordKey(run, node string, iteration uint64) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s/%020d", tracePrefix, run, node, iteration))
}

func nodePrefix(run, node string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s/", tracePrefix, run, node))
}

// Append implements Recorder.
func (r *BadgerRecorder) Append(rec Record) error {
	if strings.Contains(rec.Run, "/") || strings.Contains(rec.Node, "/") {
		return fmt.Errorf("run %q or node %q contains a slash", rec.Run, rec.Node)
	}
	val, err := rec.Marshal()
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Run, rec.Node, rec.Iteration), val)
	})
}

// Records implements Recorder.
func (r *BadgerRecorder) Records(run, node string) ([]Record, error) {
	res := []Record{}
	prefix := nodePrefix(run, node)

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return rec.Unmarshal(val)
			})
			if err != nil {
				return err
			}
			res = append(res, rec)
		}
		return nil
	})

	return res, err
}

// Runs implements Recorder.
func (r *BadgerRecorder) Runs() ([]string, error) {
	runs := make(map[string]bool)
	prefix := []byte(tracePrefix + "/")

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			parts := strings.SplitN(string(it.Item().Key()), "/", 3)
			if len(parts) == 3 {
				runs[parts[1]] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]string, 0, len(runs))
	for run := range runs {
		res = append(res, run)
	}
	sort.Strings(res)
	return res, nil
}

// Nodes returns the nodes that recorded something in run.
func (r *BadgerRecorder) Nodes(run string) ([]string, error) {
	nodes := make(map[string]bool)
	prefix := []byte(fmt.Sprintf("%s/%s/", tracePrefix, run))

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			parts := strings.SplitN(string(it.Item().Key()), "/", 4)
			if len(parts) == 4 {
				nodes[parts[2]] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]string, 0, len(nodes))
	for n := range nodes {
		res = append(res, n)
	}
	sort.Strings(res)
	return res, nil
}

// Close implements Recorder.
func (r *BadgerRecorder) Close() error {
	return r.db.Close()
}
