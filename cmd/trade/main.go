// Command trade runs the strategy against the OKX relay broker. It shuts
// down on SIGINT/SIGTERM and prints the run counters on exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"

	"main/internal/broker/live"
	"main/internal/engine"
	"main/internal/exchange/okx"
	"main/internal/obs"
	"main/internal/ops"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	profileAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *profileAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trade",
			ServerAddress:   *profileAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("trade failed: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if err := loaded.ValidateLive(); err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	b := live.New(okx.New(loaded.Exchange), loaded.Live, metrics)
	b.Start(ctx)
	defer b.Close()

	report, err := engine.New(b, loaded.BuildStrategy(), metrics).Run(ctx)

	snap := metrics.Snapshot()
	fmt.Printf("events      %d\n", report.Events)
	fmt.Printf("reconnects  %d\n", snap.Reconnects)
	fmt.Printf("gaps        %d\n", snap.SequenceGaps)
	fmt.Printf("resends     %d\n", snap.Resends)
	fmt.Printf("submit avg  %s\n", snap.SubmitLatency.Avg)
	for _, o := range report.OpenOrders {
		fmt.Printf("open order  %d %s %v remaining %.8f\n", o.ID, o.Instrument, o.Side, o.Remaining)
	}

	// Operator-initiated shutdown is not a failure.
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
