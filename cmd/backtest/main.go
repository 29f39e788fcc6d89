// Command backtest replays archived ticks through the simulated broker and
// prints a run summary. The equity curve can be written out as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"main/internal/broker/sim"
	"main/internal/engine"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/tickstore"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	from := flag.String("from", "", "Replay range start (RFC3339)")
	to := flag.String("to", "", "Replay range end (RFC3339)")
	curveOut := flag.String("curve-out", "", "Equity curve CSV output path")
	flag.Parse()

	if err := run(context.Background(), *configPath, *from, *to, *curveOut); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
}

func run(ctx context.Context, configPath, from, to, curveOut string) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if err := loaded.ValidateBacktest(); err != nil {
		return err
	}
	fromTs, toTs, err := parseRange(from, to)
	if err != nil {
		return err
	}

	db, err := conn.NewPostgres(conn.PostgresOption{DSN: loaded.DSN, Quiet: true})
	if err != nil {
		return err
	}
	defer conn.ClosePostgres(db)

	store := tickstore.NewStore(db)
	cursors := make([]tickstore.Cursor, 0, len(loaded.Instruments))
	for _, inst := range loaded.Instruments {
		c, err := store.FetchRange(ctx, inst, fromTs, toTs)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", inst, err)
		}
		cursors = append(cursors, c)
	}

	b := sim.New(sim.Merge(cursors...), loaded.Sim)
	defer b.Close()

	report, err := engine.New(b, loaded.BuildStrategy(), obs.NewMetrics()).Run(ctx)
	if err != nil {
		return err
	}

	rep := b.Report()
	fmt.Printf("events        %d\n", report.Events)
	fmt.Printf("last event ts %d\n", report.LastEventTs)
	fmt.Printf("fills         %d\n", len(rep.Realized()))
	fmt.Printf("open orders   %d\n", len(report.OpenOrders))
	fmt.Printf("final cash    %.4f\n", b.Account().Cash())
	if v, ok := rep.LastValue(); ok {
		fmt.Printf("final equity  %.4f\n", v)
	}
	fmt.Printf("sharpe        %.4f\n", rep.SharpeRatio())

	if curveOut != "" {
		f, err := os.Create(curveOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := rep.WriteCSV(f); err != nil {
			return fmt.Errorf("write curve: %w", err)
		}
	}
	return nil
}

func parseRange(from, to string) (int64, int64, error) {
	fromTs := int64(0)
	toTs := time.Now().UnixMilli()
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return 0, 0, fmt.Errorf("parse from: %w", err)
		}
		fromTs = t.UnixMilli()
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return 0, 0, fmt.Errorf("parse to: %w", err)
		}
		toTs = t.UnixMilli()
	}
	if toTs <= fromTs {
		return 0, 0, fmt.Errorf("empty replay range")
	}
	return fromTs, toTs, nil
}
