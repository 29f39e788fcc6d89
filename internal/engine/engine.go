// Package engine runs the event loop that is shared by backtests and live
// trading: pull an event from the broker, hand it to the strategy, submit the
// requests it returns. The loop is single threaded, so a strategy sees events
// strictly in broker order and never races itself.
package engine

import (
	"context"
	stderrors "errors"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/strategy"
)

// RunReport summarizes a completed run.
type RunReport struct {
	// Events is the number of events delivered to the strategy.
	Events int
	// LastEventTs is the timestamp of the final delivered event, zero when
	// the stream was empty.
	LastEventTs int64
	// OpenOrders are the orders still resting when the run ended. A clean
	// strategy cancels everything before the stream closes; anything left
	// here needs manual reconciliation in live trading.
	OpenOrders []broker.Order
}

// Engine drives one strategy against one broker.
type Engine struct {
	broker  broker.Broker
	strat   strategy.Strategy
	metrics *obs.Metrics
}

// New wires a strategy to a broker. metrics may be nil.
func New(b broker.Broker, s strategy.Strategy, m *obs.Metrics) *Engine {
	return &Engine{broker: b, strat: s, metrics: m}
}

// Run loops until the stream closes, the context is cancelled, or a fatal
// error surfaces. The returned report is valid even on error.
func (e *Engine) Run(ctx context.Context) (RunReport, error) {
	var report RunReport
	for {
		ev, err := e.broker.NextEvent(ctx)
		if err != nil {
			report.OpenOrders = e.broker.OpenOrders()
			if stderrors.Is(err, broker.ErrStreamClosed) {
				if len(report.OpenOrders) > 0 {
					logs.Warnf("run ended with %d open orders", len(report.OpenOrders))
				}
				return report, nil
			}
			return report, errors.Wrap(err, "next event").
				With("events", report.Events).
				With("lastEventTs", report.LastEventTs)
		}

		report.Events++
		report.LastEventTs = ev.Time()
		e.metrics.ObserveEvent(ev.Kind())

		reqs, err := e.dispatch(ev)
		if err != nil {
			report.OpenOrders = e.broker.OpenOrders()
			return report, err
		}
		for _, req := range reqs {
			if err := e.broker.Submit(ctx, req); err != nil {
				report.OpenOrders = e.broker.OpenOrders()
				return report, errors.Wrap(err, "submit order request")
			}
		}
	}
}

// dispatch hands one event to the strategy. A panicking strategy must not
// take the process down with orders resting on an exchange, so the panic is
// converted into a fatal error and the run unwinds normally.
func (e *Engine) dispatch(ev market.Event) (reqs []market.OrderRequest, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &broker.FatalError{
				Component: "strategy",
				Err:       errors.Errorf("panic on %T at ts %d: %v", ev, ev.Time(), r),
			}
		}
	}()
	return e.strat.OnEvent(ev), nil
}
