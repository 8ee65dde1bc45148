package power

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/sched-hpc/powercapd/power/capmc"
)

// Applier installs an allocator's change list by invoking the site
// power agent, decreases before increases (§4.4), so the installed sum
// of caps never transiently exceeds the budget.
type Applier struct {
	Capmc  *capmc.Client
	Logger hclog.Logger
}

// NewApplier returns an Applier logging under logger.
func NewApplier(c *capmc.Client, logger hclog.Logger) *Applier {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Applier{Capmc: c, Logger: logger.Named("applier")}
}

// Apply installs every record, decreases first then increases. Each
// invocation has its own 5-second deadline (via capmc.Client); a
// failure is logged and the applier moves on to the next record — the
// next tick re-derives truth from telemetry (§7).
func (a *Applier) Apply(ctx context.Context, changes []ChangeRecord, m *Metrics) error {
	var result *multierror.Error
	apply := func(rec ChangeRecord) {
		watts := rec.Watts
		if rec.Clear {
			watts = 0
		}
		if err := a.Capmc.SetPowerCap(ctx, rec.NIDRange, watts); err != nil {
			a.Logger.Error("power: set_power_cap failed", "nids", rec.NIDRange, "watts", watts, "error", err)
			if m != nil {
				m.CapmcErrors.Inc()
			}
			result = multierror.Append(result, err)
			return
		}
		if a.Logger.IsDebug() {
			a.Logger.Debug("power: set_power_cap", "nids", rec.NIDRange, "watts", watts, "direction", rec.Direction.String())
		}
	}

	for _, rec := range changes {
		if rec.Direction == Increase {
			continue
		}
		apply(rec)
	}
	for _, rec := range changes {
		if rec.Direction != Increase {
			continue
		}
		apply(rec)
	}
	return result.ErrorOrNil()
}
