// Package power implements the power-capping control loop: the
// periodic job that redistributes a global electrical power budget
// across a cluster's compute nodes by talking to an external site
// power agent and to a host-owned node/job table.
package power

import (
	"sync"
	"time"
)

// PowerState is the power sub-record the control loop owns on a node.
// It is lazily allocated on first observation of a node and lives for
// the lifetime of the node entry; the agent never deletes it. The
// agent is the sole mutator of every field here — other readers of the
// host node table must hold the table's read lock while they look at
// it, but never write it.
type PowerState struct {
	NID int // numeric node id, derived once from the node name

	MinWatts uint64
	MaxWatts uint64

	CapWatts     uint64 // last cap installed by the applier (0 = uncapped/unknown)
	CurrentWatts uint64 // most recent wattage estimate
	NewCapWatts  uint64 // scratch field, written fresh every tick by the allocator

	JouleCounter uint64 // monotonic counter from the last energy sample
	TimeUsec     uint64 // matching timestamp, usec since local midnight

	Ready bool // capmc's node_status "ready" bucket membership

	NewJobTime time.Time // when this node was last bound to a fresh job; zero = never
}

// Node is a single entry in the host's node table, as seen by the
// control loop. Name and index identity belong to the host; Power is
// the sub-record this package owns.
type Node struct {
	Name  string
	Power *PowerState
}

// Job is a single entry in the host's job table, as seen by the
// control loop. Nodes holds indices into the NodeTable's Nodes()
// slice — stable for the duration of a tick because the allocator
// holds the table's read lock for its entire pass.
type Job struct {
	Nodes   []int
	Running bool
	Level   bool // job requested a single common cap across its nodes
}

// NodeTable is the host's node inventory. The host owns the locking
// discipline; the control loop only ever asks for the write lock
// (during ingest) or the read lock (during allocation), mirroring the
// reader/writer lock the host keeps over its real node table.
//
// Nodes must return entries in a stable order across calls made while
// a lock is held — the allocator relies on table order for Phase C's
// walk and Phase E's coalescing.
type NodeTable interface {
	sync.Locker
	RLocker() sync.Locker
	Nodes() []*Node
	Lookup(name string) *Node
}

// JobTable is the host's job inventory, read-only to the control loop.
type JobTable interface {
	RLocker() sync.Locker
	Jobs() []*Job
}

// Direction is the sign of a proposed cap change.
type Direction int

const (
	Decrease Direction = iota
	Increase
)

func (d Direction) String() string {
	if d == Increase {
		return "increase"
	}
	return "decrease"
}

// ChangeRecord is one entry of the allocator's output: a group of
// nodes, identified by nid range string, that should all receive the
// same new cap. Clear is set for the cap_watts==0 clearing path, in
// which case Watts carries no meaning to callers other than the
// applier (which sends 0, i.e. "uncapped", to the site power agent).
type ChangeRecord struct {
	NIDRange  string
	Direction Direction
	Watts     uint64
	Clear     bool
}
