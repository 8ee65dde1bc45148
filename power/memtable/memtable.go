// Package memtable provides an in-memory, schema-indexed node/job
// table implementing power.NodeTable and power.JobTable, standing in
// for a host workload manager's real inventory. It follows the same
// go-memdb schema/transaction shape Nomad's own state store uses
// (single in-memory database, one table per entity, a txn per
// read or write), sized down to what this package's two entities need.
package memtable

import (
	"fmt"
	"sync"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/sched-hpc/powercapd/power"
)

const (
	tableNodes = "nodes"
	tableJobs  = "jobs"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableNodes: {
				Name: tableNodes,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
			tableJobs: {
				Name: tableJobs,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

// jobRecord wraps a power.Job with the identity field go-memdb's
// single-field indexer needs; power.Job itself carries no id because
// the control loop never looks jobs up by name, only walks them all.
type jobRecord struct {
	ID  string
	Job *power.Job
}

// Table is a go-memdb-backed power.NodeTable and power.JobTable. The
// zero value is not usable; construct one with New.
type Table struct {
	db *memdb.MemDB
	mu sync.RWMutex
}

// New returns an empty Table.
func New() (*Table, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("memtable: %w", err)
	}
	return &Table{db: db}, nil
}

// Lock/Unlock/RLocker satisfy power.NodeTable's sync.Locker embedding.
// go-memdb serializes its own writers internally; this mutex exists so
// that Nodes() snapshots returned to a caller under RLock remain
// consistent with the locking contract power.Allocate documents (a
// single reader pass sees a stable node list for its whole duration).
func (t *Table) Lock()   { t.mu.Lock() }
func (t *Table) Unlock() { t.mu.Unlock() }

func (t *Table) RLocker() sync.Locker { return t.mu.RLocker() }

// InsertNode adds or replaces a node by name.
func (t *Table) InsertNode(n *power.Node) error {
	txn := t.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableNodes, n); err != nil {
		return fmt.Errorf("memtable: insert node: %w", err)
	}
	txn.Commit()
	return nil
}

// Nodes returns every node in the table, ordered by name.
func (t *Table) Nodes() []*power.Node {
	txn := t.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableNodes, "id")
	if err != nil {
		return nil
	}
	var out []*power.Node
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*power.Node))
	}
	return out
}

// Lookup returns the node named name, or nil if absent.
func (t *Table) Lookup(name string) *power.Node {
	txn := t.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableNodes, "id", name)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*power.Node)
}

// InsertJob adds or replaces a job by id.
func (t *Table) InsertJob(id string, j *power.Job) error {
	txn := t.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableJobs, &jobRecord{ID: id, Job: j}); err != nil {
		return fmt.Errorf("memtable: insert job: %w", err)
	}
	txn.Commit()
	return nil
}

// Jobs returns every job in the table.
func (t *Table) Jobs() []*power.Job {
	txn := t.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableJobs, "id")
	if err != nil {
		return nil
	}
	var out []*power.Job
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*jobRecord).Job)
	}
	return out
}

var (
	_ power.NodeTable = (*Table)(nil)
	_ power.JobTable  = (*Table)(nil)
)
