package power

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/sched-hpc/powercapd/power/capmc"
	"github.com/sched-hpc/powercapd/power/capmc/faketask"
)

// TestApply_DecreasesBeforeIncreases mirrors §8 property 5: across any
// change list, every decrease record is dispatched before any increase
// record, regardless of the list's original order.
func TestApply_DecreasesBeforeIncreases(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "calls.log")

	client := capmc.New(faketask.Path(), hclog.NewNullLogger())
	client.Env = faketask.EnvWithLog("ok", logPath)

	applier := NewApplier(client, hclog.NewNullLogger())

	changes := []ChangeRecord{
		{NIDRange: "1", Direction: Increase, Watts: 300},
		{NIDRange: "2", Direction: Decrease, Watts: 100},
		{NIDRange: "3", Direction: Increase, Watts: 400},
		{NIDRange: "4", Direction: Decrease, Watts: 50},
	}

	err := applier.Apply(context.Background(), changes, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)

	decreaseIdx := map[int]bool{}
	for i, line := range lines {
		if strings.Contains(line, "--nids 2") || strings.Contains(line, "--nids 4") {
			decreaseIdx[i] = true
		}
	}
	lastDecrease, firstIncrease := -1, len(lines)
	for i := range lines {
		if decreaseIdx[i] && i > lastDecrease {
			lastDecrease = i
		}
		if !decreaseIdx[i] && i < firstIncrease {
			firstIncrease = i
		}
	}
	require.Less(t, lastDecrease, firstIncrease, "all decreases must precede all increases")
}

func TestApply_ClearSendsZeroWatts(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "calls.log")
	client := capmc.New(faketask.Path(), hclog.NewNullLogger())
	client.Env = faketask.EnvWithLog("ok", logPath)
	applier := NewApplier(client, hclog.NewNullLogger())

	err := applier.Apply(context.Background(), []ChangeRecord{
		{NIDRange: "1-3", Direction: Decrease, Clear: true, Watts: 999},
	}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "--node 0")
}

func TestApply_AggregatesFailures(t *testing.T) {
	client := capmc.New(faketask.Path(), hclog.NewNullLogger())
	client.Env = faketask.Env("fail")
	applier := NewApplier(client, hclog.NewNullLogger())

	err := applier.Apply(context.Background(), []ChangeRecord{
		{NIDRange: "1", Direction: Decrease, Watts: 100},
		{NIDRange: "2", Direction: Increase, Watts: 200},
	}, nil)
	require.Error(t, err)
}

func TestApply_EmptyChangeListNoop(t *testing.T) {
	client := capmc.New(faketask.Path(), hclog.NewNullLogger())
	applier := NewApplier(client, hclog.NewNullLogger())
	err := applier.Apply(context.Background(), nil, nil)
	require.NoError(t, err)
}
