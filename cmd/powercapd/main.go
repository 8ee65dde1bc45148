// Command powercapd runs the power-capping control loop against an
// in-memory demo node/job table, exposing Prometheus metrics over
// HTTP. It exists to exercise power.Agent end to end outside of a real
// workload manager; a production host embeds the power package
// directly rather than running this binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sched-hpc/powercapd/power"
	"github.com/sched-hpc/powercapd/power/memtable"
)

func main() {
	var (
		configFlag = flag.String("config", "", "comma-separated key=value configuration string")
		listenFlag = flag.String("listen", ":9540", "address to serve /metrics on")
		nodeCount  = flag.Int("nodes", 8, "number of demo nodes to seed into the in-memory table")
		logLevel   = flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	)
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "powercapd",
		Level: hclog.LevelFromString(*logLevel),
	})

	if err := run(logger, *configFlag, *listenFlag, *nodeCount); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger, configStr, listenAddr string, nodeCount int) error {
	cfg, err := power.ParseConfig(configStr, logger)
	if err != nil {
		return fmt.Errorf("parsing configuration: %w", err)
	}

	table, err := memtable.New()
	if err != nil {
		return fmt.Errorf("building demo node table: %w", err)
	}
	seedDemoNodes(table, nodeCount)

	registry := prometheus.NewRegistry()
	agent := power.NewAgent(cfg, table, table, logger, registry)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		logger.Info("serving metrics", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	agent.Start(ctx)
	logger.Info("agent started", "balance_interval", cfg.BalanceInterval, "cap_watts", cfg.CapWatts)

	<-ctx.Done()
	logger.Info("shutdown requested")

	agent.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
	return nil
}

// seedDemoNodes populates the table with a small fleet of ready nodes
// spanning a representative min/max wattage band, so the allocator has
// something to redistribute on the very first tick.
func seedDemoNodes(table *memtable.Table, n int) {
	for i := 0; i < n; i++ {
		name := power.NodeName(i)
		_ = table.InsertNode(&power.Node{
			Name: name,
			Power: &power.PowerState{
				NID:      i,
				MinWatts: 150,
				MaxWatts: 400,
				Ready:    true,
			},
		})
	}
}
