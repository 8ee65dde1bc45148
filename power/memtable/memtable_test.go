package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sched-hpc/powercapd/power"
)

func TestTable_NodesOrderedAndLookup(t *testing.T) {
	tbl, err := New()
	require.NoError(t, err)

	require.NoError(t, tbl.InsertNode(&power.Node{Name: "nid00002"}))
	require.NoError(t, tbl.InsertNode(&power.Node{Name: "nid00001"}))
	require.NoError(t, tbl.InsertNode(&power.Node{Name: "nid00003"}))

	nodes := tbl.Nodes()
	require.Len(t, nodes, 3)
	require.Equal(t, "nid00001", nodes[0].Name)
	require.Equal(t, "nid00002", nodes[1].Name)
	require.Equal(t, "nid00003", nodes[2].Name)

	require.NotNil(t, tbl.Lookup("nid00002"))
	require.Nil(t, tbl.Lookup("nid99999"))
}

func TestTable_InsertNodeReplaces(t *testing.T) {
	tbl, err := New()
	require.NoError(t, err)

	require.NoError(t, tbl.InsertNode(&power.Node{Name: "nid00001", Power: &power.PowerState{CapWatts: 100}}))
	require.NoError(t, tbl.InsertNode(&power.Node{Name: "nid00001", Power: &power.PowerState{CapWatts: 200}}))

	require.Len(t, tbl.Nodes(), 1)
	require.Equal(t, uint64(200), tbl.Lookup("nid00001").Power.CapWatts)
}

func TestTable_Jobs(t *testing.T) {
	tbl, err := New()
	require.NoError(t, err)

	require.NoError(t, tbl.InsertJob("job1", &power.Job{Nodes: []int{1, 2}, Running: true}))
	require.NoError(t, tbl.InsertJob("job2", &power.Job{Nodes: []int{3}, Running: false}))

	jobs := tbl.Jobs()
	require.Len(t, jobs, 2)
}

func TestTable_SatisfiesPowerInterfaces(t *testing.T) {
	tbl, err := New()
	require.NoError(t, err)

	var _ power.NodeTable = tbl
	var _ power.JobTable = tbl

	tbl.Lock()
	tbl.Unlock()

	tbl.RLocker().Lock()
	tbl.RLocker().Unlock()
}
