package power

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-set/v3"
)

// category is the Phase A classification of a ready node.
type category int

const (
	catNone category = iota
	catLower
	catSame
	catPressing
)

// Allocate runs Phases A-E of §4.3 and returns the change list the
// applier should install. The caller must hold the node/job tables'
// read lock for the duration of this call; Allocate writes
// NewCapWatts on every node.power sub-record, which is safe under a
// read lock only because the power sub-record has exactly one writer
// in the whole system (this agent) — see the invariant in §3.
func Allocate(logger hclog.Logger, cfg Config, nodes []*Node, jobs []*Job, now time.Time, m *Metrics) []ChangeRecord {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.CapWatts == 0 {
		return clearChanges(nodes)
	}

	cats := make([]category, len(nodes))
	var allocPower, needPower uint64
	var lowerCnt, sameCnt, raiseCnt int

	// Phase A
	for i, n := range nodes {
		p := n.Power
		if p == nil {
			continue
		}
		if !p.Ready {
			if p.CapWatts == 0 {
				p.NewCapWatts = p.MaxWatts
			} else {
				p.NewCapWatts = p.CapWatts
			}
			allocPower += p.NewCapWatts
			continue
		}

		p.NewCapWatts = 0
		if p.CapWatts == 0 || p.CurrentWatts == 0 {
			// Uninitialized: no telemetry to act on yet, deferred.
			continue
		}

		if p.CurrentWatts*100 < p.CapWatts*cfg.LowerThreshold {
			rateStep := (p.MaxWatts - p.MinWatts) * cfg.DecreaseRate / 100
			halfHeadroom := (p.CapWatts - p.CurrentWatts) / 2
			step := rateStep
			if halfHeadroom < step {
				step = halfHeadroom
			}
			newCap := p.CapWatts - step
			if newCap < p.MinWatts {
				newCap = p.MinWatts
			}
			p.NewCapWatts = newCap
			allocPower += p.NewCapWatts
			cats[i] = catLower
			lowerCnt++
		} else if p.CurrentWatts*100 < p.CapWatts*cfg.UpperThreshold {
			newCap := p.CapWatts
			if p.MinWatts > newCap {
				newCap = p.MinWatts
			}
			p.NewCapWatts = newCap
			allocPower += p.NewCapWatts
			cats[i] = catSame
			sameCnt++
		} else {
			cats[i] = catPressing
			raiseCnt++
			needPower += p.MinWatts
		}
	}

	// Phase B: clawback to respect the global budget.
	var avail uint64
	if cfg.CapWatts > allocPower {
		avail = cfg.CapWatts - allocPower
	}
	if (allocPower > cfg.CapWatts || needPower > avail) && (lowerCnt+sameCnt) > 0 {
		var red1, red2 uint64
		if allocPower > cfg.CapWatts {
			red1 = allocPower - cfg.CapWatts
		}
		if needPower > avail {
			red2 = needPower - avail
		}
		red := red1
		if red2 > red {
			red = red2
		}
		red /= uint64(lowerCnt + sameCnt)

		for _, n := range nodes {
			p := n.Power
			if p == nil || p.NewCapWatts == 0 {
				continue
			}
			headroom := p.NewCapWatts - p.MinWatts
			cut := red
			if headroom < cut {
				cut = headroom
			}
			p.NewCapWatts -= cut
			allocPower -= cut
		}
		if cfg.CapWatts > allocPower {
			avail = cfg.CapWatts - allocPower
		} else {
			avail = 0
		}
	}

	if logger.IsDebug() {
		logger.Debug("power: distributing across pressing nodes", "avail_watts", avail, "raise_cnt", raiseCnt)
	}

	// Phase C: distribute avail across pressing nodes.
	if raiseCnt > 0 {
		recentCutoff := now.Add(-cfg.RecentJob)
		remaining := raiseCnt
		share := avail / uint64(remaining)
		for i, n := range nodes {
			if cats[i] != catPressing {
				continue
			}
			p := n.Power

			var newCap uint64
			unthrottled := p.NewJobTime.IsZero() || p.NewJobTime.After(recentCutoff) || p.CapWatts == 0
			if unthrottled {
				newCap = share
			} else {
				increaseStep := (p.MaxWatts - p.MinWatts) * cfg.IncreaseRate / 100
				newCap = p.CapWatts + increaseStep
				if newCap > share {
					newCap = share
				}
			}
			if newCap < p.MinWatts {
				newCap = p.MinWatts
			}
			if newCap > p.MaxWatts {
				newCap = p.MaxWatts
			}
			p.NewCapWatts = newCap

			if avail > newCap {
				avail -= newCap
			} else {
				avail = 0
			}
			remaining--
			if remaining == 0 {
				break
			}
			if newCap != share {
				share = avail / uint64(remaining)
			}
		}
	}

	// Phase D: optional per-job levelling.
	levelJobs(cfg, nodes, jobs)

	if logger.IsDebug() {
		var allocTotal, usedTotal uint64
		for _, n := range nodes {
			p := n.Power
			if p == nil {
				continue
			}
			allocTotal += p.NewCapWatts
			usedTotal += p.CurrentWatts
			logger.Debug("power: node", "node", n.Name, "cur", p.CurrentWatts, "min", p.MinWatts,
				"max", p.MaxWatts, "old_cap", p.CapWatts, "new_cap", p.NewCapWatts, "ready", p.Ready)
		}
		logger.Debug("power: allocation summary", "alloc_watts", allocTotal, "used_watts", usedTotal)
	}

	if m != nil {
		m.Observe(allocPower, avail, lowerCnt, sameCnt, raiseCnt)
	}

	return changeList(nodes)
}

// levelJobs implements Phase D: for every selected running job with at
// least two ready nodes whose proposed caps differ, set every ready
// member to the arithmetic mean of their proposed caps.
func levelJobs(cfg Config, nodes []*Node, jobs []*Job) {
	if cfg.JobLevel == JobLevelForceOff {
		return
	}
	for _, j := range jobs {
		if !j.Running {
			continue
		}
		if cfg.JobLevel == JobLevelPerJob && !j.Level {
			continue
		}

		var total, count, min, max uint64
		first := true
		members := make([]*PowerState, 0, len(j.Nodes))
		// a job's node list is host-owned and may repeat an index; dedupe
		// before folding into the mean so a double-listed node isn't
		// weighted twice.
		seen := set.New[int](len(j.Nodes))
		for _, idx := range j.Nodes {
			if idx < 0 || idx >= len(nodes) || !seen.Insert(idx) {
				continue
			}
			p := nodes[idx].Power
			if p == nil || !p.Ready {
				continue
			}
			members = append(members, p)
			total += p.NewCapWatts
			count++
			if first || p.NewCapWatts > max {
				max = p.NewCapWatts
			}
			if first || p.NewCapWatts < min {
				min = p.NewCapWatts
			}
			first = false
		}
		if count < 2 || min == max {
			continue
		}
		avg := total / count
		for _, p := range members {
			p.NewCapWatts = avg
		}
	}
}

// changeList implements Phase E: walk nodes in order, skip unchanged
// ones, group the rest by (direction, watts), and compress each
// group's nids into a range string. Operates on node_power_list's
// logical contract directly (Design Notes: the original's part_list
// reference here is treated as a bug and not reproduced).
func changeList(nodes []*Node) []ChangeRecord {
	type key struct {
		dir   Direction
		watts uint64
	}
	order := make([]key, 0)
	groups := make(map[key][]int)

	for _, n := range nodes {
		p := n.Power
		if p == nil || p.NewCapWatts == p.CapWatts {
			continue
		}
		dir := Decrease
		if p.NewCapWatts > p.CapWatts {
			dir = Increase
		}
		nid, err := ParseNID(n.Name)
		if err != nil {
			continue
		}
		k := key{dir, p.NewCapWatts}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], nid)
	}

	records := make([]ChangeRecord, 0, len(order))
	for _, k := range order {
		records = append(records, ChangeRecord{
			NIDRange:  RangeString(groups[k]),
			Direction: k.dir,
			Watts:     k.watts,
		})
	}
	return records
}

// clearChanges implements the cap_watts==0 clearing path: bypass
// Phases A-E and emit one record listing every ready node whose
// installed cap is currently nonzero.
func clearChanges(nodes []*Node) []ChangeRecord {
	nids := make([]int, 0)
	for _, n := range nodes {
		p := n.Power
		if p == nil || !p.Ready || p.CapWatts == 0 {
			continue
		}
		nid, err := ParseNID(n.Name)
		if err != nil {
			continue
		}
		nids = append(nids, nid)
	}
	if len(nids) == 0 {
		return nil
	}
	return []ChangeRecord{{
		NIDRange:  RangeString(nids),
		Direction: Decrease,
		Clear:     true,
	}}
}
