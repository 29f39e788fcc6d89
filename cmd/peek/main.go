// Command peek dumps archived ticks for one instrument, for eyeballing data
// quality before a backtest.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"main/internal/market"
	"main/internal/ops"
	"main/internal/tickstore"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	instrument := flag.String("instrument", "", "Instrument to dump")
	from := flag.String("from", "", "Range start (RFC3339)")
	to := flag.String("to", "", "Range end (RFC3339)")
	limit := flag.Int("limit", 100, "Max events to print (0=unlimited)")
	flag.Parse()

	if err := run(context.Background(), *configPath, *instrument, *from, *to, *limit); err != nil {
		log.Fatalf("peek failed: %v", err)
	}
}

func run(ctx context.Context, configPath, instrument, from, to string, limit int) error {
	if instrument == "" {
		return fmt.Errorf("instrument is required")
	}
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if err := loaded.ValidateBacktest(); err != nil {
		return err
	}

	fromTs := int64(0)
	toTs := time.Now().UnixMilli()
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return err
		}
		fromTs = t.UnixMilli()
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return err
		}
		toTs = t.UnixMilli()
	}

	db, err := conn.NewPostgres(conn.PostgresOption{DSN: loaded.DSN, Quiet: true})
	if err != nil {
		return err
	}
	defer conn.ClosePostgres(db)

	cursor, err := tickstore.NewStore(db).FetchRange(ctx, market.Instrument(instrument), fromTs, toTs)
	if err != nil {
		return err
	}

	for n := 0; limit == 0 || n < limit; n++ {
		ev, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch v := ev.(type) {
		case market.Quote:
			fmt.Printf("%d quote bid %.8f x %.4f ask %.8f x %.4f\n",
				v.Ts, v.BidPrice, v.BidSize, v.AskPrice, v.AskSize)
		case market.Trade:
			fmt.Printf("%d trade %v %.8f x %.4f id %s\n", v.Ts, v.Side, v.Price, v.Size, v.TradeID)
		default:
			fmt.Printf("%d %T\n", ev.Time(), ev)
		}
	}
	return nil
}
