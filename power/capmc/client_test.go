package capmc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/sched-hpc/powercapd/power/capmc/faketask"
)

func TestMain(m *testing.M) {
	if !faketask.Run() {
		os.Exit(m.Run())
	}
}

func newTestClient(mode string) *Client {
	c := New(faketask.Path(), hclog.NewNullLogger())
	c.Timeout = 3 * time.Second
	c.Env = faketask.Env(mode)
	return c
}

func TestClient_Capabilities(t *testing.T) {
	c := newTestClient("ok")
	resp, err := c.Capabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Groups, 1)
	require.Equal(t, []int{1, 2}, resp.Groups[0].NIDs)
}

func TestClient_Caps(t *testing.T) {
	c := newTestClient("ok")
	resp, err := c.Caps(context.Background(), "1-2")
	require.NoError(t, err)
	require.Len(t, resp.NIDs, 2)
	require.Equal(t, int64(300), resp.NIDs[0].Controls[0].Val)
}

func TestClient_NodeStatus(t *testing.T) {
	c := newTestClient("ok")
	resp, err := c.NodeStatus(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []int{1, 2}, resp.Ready)
}

func TestClient_EnergyCounters(t *testing.T) {
	c := newTestClient("ok")
	resp, err := c.EnergyCounters(context.Background(), "1-2")
	require.NoError(t, err)
	require.Len(t, resp.Nodes, 2)
	require.Equal(t, uint64(1002000), resp.Nodes[0].EnergyCtr)
}

func TestClient_SetPowerCap(t *testing.T) {
	c := newTestClient("ok")
	err := c.SetPowerCap(context.Background(), "1-2", 250)
	require.NoError(t, err)
}

func TestClient_NonzeroExit(t *testing.T) {
	c := newTestClient("fail")
	_, err := c.Capabilities(context.Background())
	require.Error(t, err)
}

func TestClient_EmptyOutput(t *testing.T) {
	c := newTestClient("empty")
	_, err := c.NodeStatus(context.Background())
	require.Error(t, err)
}

func TestClient_DefaultTimeoutApplied(t *testing.T) {
	c := New(faketask.Path(), hclog.NewNullLogger())
	require.Equal(t, DefaultTimeout, c.timeout())
}
