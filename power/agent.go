package power

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sched-hpc/powercapd/power/capmc"
)

// Agent is a PowerAgent: a single long-lived background worker,
// cooperatively cancellable, that is the sole mutator of the power
// fields on the host's node table (§2/§5/Design Notes). Construct one
// with NewAgent, then call Start.
type Agent struct {
	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool

	cfg    Config
	logger hclog.Logger

	capmc   *capmc.Client
	applier *Applier
	metrics *Metrics

	nodes NodeTable
	jobs  JobTable

	fullNIDRange       string
	lastBalanceTime    time.Time
	lastCapabilitiesAt time.Time
	lastCapWatts       uint64
	haveReadInitial    bool

	doneCh chan struct{}
}

// NewAgent builds an Agent. cfg is the initial configuration (see
// ParseConfig); reg may be nil to disable metrics export.
func NewAgent(cfg Config, nodes NodeTable, jobs JobTable, logger hclog.Logger, reg prometheus.Registerer) *Agent {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("power")
	client := capmc.New(cfg.CapmcPath, logger)
	a := &Agent{
		cfg:          cfg,
		logger:       logger,
		capmc:        client,
		applier:      NewApplier(client, logger),
		metrics:      NewMetrics(reg),
		nodes:        nodes,
		jobs:         jobs,
		lastCapWatts: ^uint64(0), // sentinel: force the first tick to evaluate
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Start spawns the background worker. It returns immediately; call
// Stop to request cooperative shutdown.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	a.stopped = false
	a.doneCh = make(chan struct{})
	a.lastBalanceTime = time.Now()
	a.mu.Unlock()

	go a.run(ctx)
}

// Stop requests cooperative shutdown and blocks until the worker
// exits. A child process already in flight is allowed to finish — its
// own 5-second deadline bounds this wait (§5).
func (a *Agent) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.cond.Broadcast()
	done := a.doneCh
	a.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Reload re-parses the configuration surface (§6 "single external
// entry point") under the agent's own lock, invalidating the cached
// full nid range string (§4.1).
func (a *Agent) Reload(raw string) error {
	cfg, err := ParseConfig(raw, a.logger)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.fullNIDRange = ""
	a.mu.Unlock()
	return nil
}

// NotifyJobStart stamps NewJobTime on the given node indices, the
// host-facing half of the power_p_job_start/power_p_job_resume hooks
// from the original plugin (§12 of SPEC_FULL.md): call this from the
// host's own job-start/resume path.
func (a *Agent) NotifyJobStart(nodes []int, now time.Time) {
	a.nodes.Lock()
	defer a.nodes.Unlock()
	table := a.nodes.Nodes()
	for _, idx := range nodes {
		if idx < 0 || idx >= len(table) {
			continue
		}
		p := table[idx].Power
		if p == nil {
			p = &PowerState{}
			table[idx].Power = p
		}
		p.NewJobTime = now
	}
}

// wait blocks for d or until Stop is called, whichever comes first,
// returning true if a stop was observed. It is the Go translation of
// the original plugin's pthread_cond_timedwait loop (Design Notes:
// "the cancellable timed wait becomes one of the object's methods
// guarded by the object's own mutex/condvar pair").
func (a *Agent) wait(d time.Duration) (stopped bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return true
	}
	timer := time.AfterFunc(d, func() {
		a.mu.Lock()
		a.cond.Broadcast()
		a.mu.Unlock()
	})
	defer timer.Stop()
	a.cond.Wait()
	return a.stopped
}

func (a *Agent) run(ctx context.Context) {
	defer close(a.doneCh)

	for {
		if a.wait(1 * time.Second) {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		a.mu.Lock()
		elapsed := now.Sub(a.lastBalanceTime)
		interval := a.cfg.BalanceInterval
		a.mu.Unlock()
		if elapsed < interval {
			continue
		}

		a.mu.Lock()
		capWatts := a.cfg.CapWatts
		skip := capWatts == 0 && a.lastCapWatts == 0
		a.lastCapWatts = capWatts
		a.mu.Unlock()
		if skip {
			continue
		}

		a.tick(ctx)

		a.mu.Lock()
		a.lastBalanceTime = time.Now()
		a.mu.Unlock()
	}
}

// tick runs one ingest -> allocate -> apply pass (§2/§4.5). Every tick
// gets its own correlation id so the ingest calls, the allocator's log
// lines, and the apply-failure summary it drives can be grepped
// together. The applier's per-record lines and the capmc client's
// per-invocation lines are logged through their own loggers and do not
// carry the tick id.
func (a *Agent) tick(ctx context.Context) {
	tickLogger := a.logger.With("tick_id", uuid.New().String())
	start := time.Now()
	defer func() { a.metrics.TickLatency.Observe(time.Since(start).Seconds()) }()

	a.mu.Lock()
	cfg := a.cfg
	needFullRange := a.fullNIDRange == ""
	a.mu.Unlock()

	if needFullRange {
		a.nodes.RLocker().Lock()
		full := BuildFullRange(a.nodes.Nodes())
		a.nodes.RLocker().Unlock()
		a.mu.Lock()
		a.fullNIDRange = full
		a.mu.Unlock()
	}
	a.mu.Lock()
	fullRange := a.fullNIDRange
	a.mu.Unlock()
	if fullRange == "" {
		a.logger.Error("power: no nodes known, skipping tick")
		return
	}

	if !a.haveReadInitial {
		if err := ingestInstalledCaps(ctx, a.capmc, a.nodes, fullRange, tickLogger); err != nil {
			a.metrics.CapmcErrors.Inc()
		}
		a.haveReadInitial = true
	}

	if time.Since(a.lastCapabilitiesAt) > CapabilitiesRefresh*time.Second {
		if err := ingestCapabilities(ctx, a.capmc, a.nodes, tickLogger); err != nil {
			a.metrics.CapmcErrors.Inc()
		}
		a.lastCapabilitiesAt = time.Now()
	}

	if err := ingestEnergy(ctx, a.capmc, a.nodes, fullRange, tickLogger); err != nil {
		a.metrics.CapmcErrors.Inc()
	}
	if err := ingestReadiness(ctx, a.capmc, a.nodes, tickLogger); err != nil {
		a.metrics.CapmcErrors.Inc()
	}

	a.nodes.RLocker().Lock()
	a.jobs.RLocker().Lock()
	nodes := a.nodes.Nodes()
	jobs := a.jobs.Jobs()
	changes := Allocate(tickLogger, cfg, nodes, jobs, time.Now(), a.metrics)
	a.jobs.RLocker().Unlock()
	a.nodes.RLocker().Unlock()

	if err := a.applier.Apply(ctx, changes, a.metrics); err != nil {
		tickLogger.Warn("power: one or more cap changes failed", "error", err)
	}
}
