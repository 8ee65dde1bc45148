package power

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-set/v3"

	"github.com/sched-hpc/powercapd/power/capmc"
)

// CapabilitiesRefresh is the cadence at which ingestCapabilities is
// allowed to run again (§4.1): at most once per 600 seconds.
const CapabilitiesRefresh = 600

// findControl returns the Val/Min/Max-bearing control entry named
// name, or false if absent.
func findControl(controls []capmc.Control, name string) (capmc.Control, bool) {
	for _, c := range controls {
		if c.Name == name {
			return c, true
		}
	}
	return capmc.Control{}, false
}

// ingestCapabilities implements the get_power_cap_capabilities ingest
// (§4.1). Accelerator ranges are parsed and logged but never written
// to a node's applied fields — accelerators are always capped at zero
// (§1/§4.4).
func ingestCapabilities(ctx context.Context, client *capmc.Client, table NodeTable, logger hclog.Logger) error {
	resp, err := client.Capabilities(ctx)
	if err != nil {
		logger.Error("power: get_power_cap_capabilities failed", "error", err)
		return err
	}

	table.Lock()
	defer table.Unlock()
	var result *multierror.Error
	for _, group := range resp.Groups {
		nodeCtl, hasNode := findControl(group.Controls, "node")
		accelCtl, hasAccel := findControl(group.Controls, "accel")

		var groupNIDs []int
		for _, nid := range group.NIDs {
			name := NodeName(nid)
			node := table.Lookup(name)
			if node == nil {
				logger.Debug("power: node not in host table", "node", name)
				result = multierror.Append(result, fmt.Errorf("unknown node %s", name))
				continue
			}
			if node.Power == nil {
				node.Power = &PowerState{NID: nid}
			}
			if hasNode {
				node.Power.MinWatts = uint64(nodeCtl.Min)
				node.Power.MaxWatts = uint64(nodeCtl.Max)
			}
			groupNIDs = append(groupNIDs, nid)
		}

		if logger.IsDebug() {
			var accelMin, accelMax int64
			if hasAccel {
				accelMin, accelMax = accelCtl.Min, accelCtl.Max
			}
			logger.Debug("power: capability group",
				"accel_watts_avail", fmt.Sprintf("%d-%d", accelMin, accelMax),
				"node_watts_avail", fmt.Sprintf("%d-%d", nodeCtl.Min, nodeCtl.Max),
				"nodes", RangeString(groupNIDs))
		}
	}
	return result.ErrorOrNil()
}

// ingestInstalledCaps implements the get_power_cap ingest (§4.1),
// seeding cap_watts on the first tick.
func ingestInstalledCaps(ctx context.Context, client *capmc.Client, table NodeTable, nidRange string, logger hclog.Logger) error {
	resp, err := client.Caps(ctx, nidRange)
	if err != nil {
		logger.Error("power: get_power_cap failed", "error", err)
		return err
	}

	table.Lock()
	defer table.Unlock()
	var result *multierror.Error
	for _, entry := range resp.NIDs {
		name := NodeName(entry.NID)
		node := table.Lookup(name)
		if node == nil {
			logger.Debug("power: node not in host table", "node", name)
			result = multierror.Append(result, fmt.Errorf("unknown node %s", name))
			continue
		}
		if node.Power == nil {
			node.Power = &PowerState{NID: entry.NID}
		}
		if ctl, ok := findControl(entry.Controls, "node"); ok {
			node.Power.CapWatts = uint64(ctl.Val)
		}
	}
	return result.ErrorOrNil()
}

// ingestReadiness implements the node_status ingest (§4.1): every
// node not reported in the "ready" bucket is swept to not-ready first.
func ingestReadiness(ctx context.Context, client *capmc.Client, table NodeTable, logger hclog.Logger) error {
	resp, err := client.NodeStatus(ctx)
	if err != nil {
		logger.Error("power: node_status failed", "error", err)
		return err
	}

	ready := set.From(resp.Ready)

	table.Lock()
	defer table.Unlock()
	var result *multierror.Error
	for _, n := range table.Nodes() {
		if n.Power == nil {
			n.Power = &PowerState{}
		}
		nid, err := ParseNID(n.Name)
		if err != nil {
			continue
		}
		n.Power.NID = nid
		n.Power.Ready = ready.Contains(nid)
	}

	for _, nid := range resp.Ready {
		if table.Lookup(NodeName(nid)) == nil {
			logger.Debug("power: node not in host table", "node", NodeName(nid))
			result = multierror.Append(result, fmt.Errorf("unknown node %s", NodeName(nid)))
		}
	}
	return result.ErrorOrNil()
}

// ingestEnergy implements the get_node_energy_counter ingest (§4.1/§4.2):
// parse the wall-clock timestamp, feed (joules, time_usec) through the
// wattage estimator, and store both the new estimate and the raw
// sample for next tick.
func ingestEnergy(ctx context.Context, client *capmc.Client, table NodeTable, nidRange string, logger hclog.Logger) error {
	resp, err := client.EnergyCounters(ctx, nidRange)
	if err != nil {
		logger.Error("power: get_node_energy_counter failed", "error", err)
		return err
	}

	table.Lock()
	defer table.Unlock()
	for _, n := range table.Nodes() {
		if n.Power == nil {
			n.Power = &PowerState{}
		} else {
			n.Power.CurrentWatts = 0
		}
	}

	var result *multierror.Error
	for _, entry := range resp.Nodes {
		name := NodeName(entry.NID)
		node := table.Lookup(name)
		if node == nil {
			logger.Debug("power: node not in host table", "node", name)
			result = multierror.Append(result, fmt.Errorf("unknown node %s", name))
			continue
		}
		if node.Power == nil {
			node.Power = &PowerState{NID: entry.NID}
		}
		timeUsec, ok := capmc.ParseClockUsec(entry.Time)
		if !ok {
			timeUsec = 0
		}

		watts, estimated := estimateWatts(node.Power.JouleCounter, node.Power.TimeUsec, entry.EnergyCtr, timeUsec)
		if estimated {
			node.Power.CurrentWatts = watts
		} else {
			node.Power.CurrentWatts = 0
		}
		node.Power.JouleCounter = entry.EnergyCtr
		node.Power.TimeUsec = timeUsec
	}
	return result.ErrorOrNil()
}
