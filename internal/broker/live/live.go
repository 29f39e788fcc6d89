// Package live relays a real exchange session through the broker contract.
// A background reader translates exchange messages into events and feeds a
// bounded queue; the engine consumes them exactly as it would consume a
// replay. Reconnects, resubscription, and order resends all happen below the
// contract so the strategy never sees them.
package live

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"main/internal/broker"
	"main/internal/market"
	"main/internal/obs"
)

// ErrSequenceGap is returned by ExchangeClient.ReadEvent when the stream
// skipped messages. The relay resyncs by reconnecting and resubscribing.
var ErrSequenceGap = stderrors.New("sequence gap in exchange stream")

// ExchangeClient is one session with the venue. Implementations own the wire
// protocol only; the relay owns reconnects, retries, and order state.
type ExchangeClient interface {
	// Connect dials and authenticates a fresh session, discarding any
	// previous one.
	Connect(ctx context.Context) error

	// Subscribe requests market data and order updates for the instruments.
	Subscribe(ctx context.Context, instruments []market.Instrument) error

	// ReadEvent blocks for the next exchange message, already translated to
	// an event. It returns ErrSequenceGap when the stream skipped messages.
	ReadEvent(ctx context.Context) (market.Event, error)

	// Place, Cancel, and Modify issue order operations keyed by the client
	// order id. Idempotent on the venue side: resending a known id is safe.
	Place(ctx context.Context, p market.Place) error
	Cancel(ctx context.Context, c market.Cancel) error
	Modify(ctx context.Context, m market.Modify) error

	Close() error
}

// Config parameterizes the relay.
type Config struct {
	Instruments []market.Instrument
	// QueueSize bounds the reader-to-engine queue; 4096 unless set.
	QueueSize int
	// MaxRetries bounds consecutive failed session attempts. Exceeding it
	// ends the run with a fatal error.
	MaxRetries int
	Backoff    Backoff
	// SubmitPerSec and SubmitBurst bound the order operation rate; 20/5
	// unless set.
	SubmitPerSec float64
	SubmitBurst  int
}

// Broker is the live implementation of broker.Broker.
type Broker struct {
	cfg     Config
	client  ExchangeClient
	queue   *Queue
	limiter *rate.Limiter
	metrics *obs.Metrics

	mu      sync.Mutex
	table   *broker.Table
	pending map[uint64]market.Place
	// local holds broker-synthesized events (rejects for per-order
	// failures). They bypass the bounded queue so a full queue can never
	// deadlock Submit against NextEvent.
	local   []market.Event
	failure error

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New builds a relay over an exchange client. Call Start before the first
// NextEvent.
func New(client ExchangeClient, cfg Config, metrics *obs.Metrics) *Broker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.SubmitPerSec <= 0 {
		cfg.SubmitPerSec = 20
	}
	if cfg.SubmitBurst <= 0 {
		cfg.SubmitBurst = 5
	}
	return &Broker{
		cfg:     cfg,
		client:  client,
		queue:   NewQueue(cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.SubmitPerSec), cfg.SubmitBurst),
		metrics: metrics,
		table:   broker.NewTable(),
		pending: make(map[uint64]market.Place),
		done:    make(chan struct{}),
	}
}

// Start launches the background reader. Stream failures surface through
// NextEvent, never here.
func (b *Broker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.started = true
	go b.run(runCtx)
}

// NextEvent delivers the next queued event. It returns ErrStreamClosed after
// a clean shutdown and the recorded fatal error after a failed one.
func (b *Broker) NextEvent(ctx context.Context) (market.Event, error) {
	b.mu.Lock()
	if len(b.local) > 0 {
		ev := b.local[0]
		b.local = b.local[1:]
		b.mu.Unlock()
		return ev, nil
	}
	b.mu.Unlock()

	ev, err := b.queue.Pop(ctx)
	if err == nil {
		return ev, nil
	}
	if stderrors.Is(err, ErrQueueClosed) {
		b.mu.Lock()
		failure := b.failure
		b.mu.Unlock()
		if failure != nil {
			return nil, failure
		}
		return nil, broker.ErrStreamClosed
	}
	return nil, err
}

// Submit forwards an order operation to the exchange, rate limited.
// Per-order failures become Reject events; only broker-level faults error.
func (b *Broker) Submit(ctx context.Context, req market.OrderRequest) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	defer func() { b.metrics.ObserveSubmit(time.Since(start)) }()

	now := time.Now().UnixMilli()
	switch r := req.(type) {
	case market.Place:
		return b.submitPlace(ctx, r, now)
	case market.Cancel:
		return b.submitCancel(ctx, r, now)
	case market.Modify:
		return b.submitModify(ctx, r, now)
	default:
		return &broker.FatalError{
			Component: "live",
			Err:       errors.Errorf("unsupported request kind %d", req.Request()),
		}
	}
}

// OpenOrders snapshots non-terminal orders, sorted by id.
func (b *Broker) OpenOrders() []broker.Order {
	b.mu.Lock()
	out := b.table.Open()
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops the reader and closes the session. Buffered events still drain
// through NextEvent.
func (b *Broker) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.queue.Close()
	err := b.client.Close()
	if b.started {
		<-b.done
	}
	return err
}

func (b *Broker) submitPlace(ctx context.Context, p market.Place, now int64) error {
	if err := p.Validate(); err != nil {
		b.rejectLocal(p.OrderID, now, err.Error())
		return nil
	}

	b.mu.Lock()
	_, err := b.table.Add(p, now)
	if err == nil {
		b.pending[p.OrderID] = p
	}
	b.mu.Unlock()
	if err != nil {
		b.rejectLocal(p.OrderID, now, err.Error())
		return nil
	}

	if err := b.client.Place(ctx, p); err != nil {
		// The order stays pending; the reconnect path resends it under the
		// same client order id.
		logs.Warnf("place order %d failed, awaiting resend: %+v", p.OrderID, err)
	}
	return nil
}

func (b *Broker) submitCancel(ctx context.Context, c market.Cancel, now int64) error {
	b.mu.Lock()
	o, ok := b.table.Get(c.OrderID)
	open := ok && !o.Status.Terminal()
	b.mu.Unlock()
	if !open {
		b.rejectLocal(c.OrderID, now, "cancel rejected: order not open")
		return nil
	}
	if err := b.client.Cancel(ctx, c); err != nil {
		b.rejectLocal(c.OrderID, now, "cancel failed: "+err.Error())
	}
	return nil
}

func (b *Broker) submitModify(ctx context.Context, m market.Modify, now int64) error {
	b.mu.Lock()
	o, ok := b.table.Get(m.OrderID)
	open := ok && !o.Status.Terminal()
	b.mu.Unlock()
	if !open {
		b.rejectLocal(m.OrderID, now, "modify rejected: order not open")
		return nil
	}
	if err := b.client.Modify(ctx, m); err != nil {
		b.rejectLocal(m.OrderID, now, "modify failed: "+err.Error())
	}
	return nil
}

func (b *Broker) rejectLocal(id uint64, ts int64, reason string) {
	b.mu.Lock()
	b.local = append(b.local, market.Reject{OrderID: id, Ts: ts, Reason: reason})
	b.mu.Unlock()
}

func (b *Broker) run(ctx context.Context) {
	defer close(b.done)
	defer b.queue.Close()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := b.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logs.Errorf("exchange connect failed: %+v", err)
			attempt++
			if b.giveUp(attempt, err) {
				return
			}
			b.sleepBackoff(ctx, attempt)
			continue
		}
		b.metrics.IncReconnect()
		logs.Info("exchange session established")
		attempt = 0

		err := b.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		if stderrors.Is(err, ErrSequenceGap) {
			b.metrics.IncSequenceGap()
			logs.Warnf("sequence gap, resyncing: %+v", err)
		} else {
			logs.Errorf("exchange session dropped: %+v", err)
		}
		attempt++
		if b.giveUp(attempt, err) {
			return
		}
		b.sleepBackoff(ctx, attempt)
	}
}

func (b *Broker) connect(ctx context.Context) error {
	if err := b.client.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect")
	}
	if err := b.client.Subscribe(ctx, b.cfg.Instruments); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	for _, p := range b.pendingSnapshot() {
		if err := b.client.Place(ctx, p); err != nil {
			return errors.Wrap(err, "resend order").With("order_id", p.OrderID)
		}
		b.metrics.IncResend()
	}
	return nil
}

func (b *Broker) readLoop(ctx context.Context) error {
	for {
		ev, err := b.client.ReadEvent(ctx)
		if err != nil {
			return err
		}
		b.applyOrderState(ev)
		if err := b.queue.Publish(ctx, ev); err != nil {
			return err
		}
		b.metrics.ObserveQueueDepth(b.queue.Len())
	}
}

// applyOrderState mirrors exchange order notifications into the lifecycle
// table. Notifications for ids this session never placed are passed through
// untouched; another session may own them.
func (b *Broker) applyOrderState(ev market.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	switch v := ev.(type) {
	case market.OrderAck:
		_, err = b.table.MarkOpen(v.OrderID)
	case market.Fill:
		var o *broker.Order
		o, err = b.table.ApplyFill(v.OrderID, v.Size)
		if err == nil && o.Status.Terminal() {
			delete(b.pending, v.OrderID)
		}
	case market.Reject:
		_, err = b.table.MarkRejected(v.OrderID)
		delete(b.pending, v.OrderID)
	case market.CancelAck:
		_, err = b.table.MarkCancelled(v.OrderID)
		delete(b.pending, v.OrderID)
	default:
		return
	}
	if err != nil && !stderrors.Is(err, broker.ErrUnknownOrder) {
		logs.Warnf("order state update %T: %+v", ev, err)
	}
}

// pendingSnapshot returns the resend set in id order so reconnects replay
// orders deterministically.
func (b *Broker) pendingSnapshot() []market.Place {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]market.Place, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (b *Broker) giveUp(attempt int, err error) bool {
	if attempt < b.cfg.MaxRetries {
		return false
	}
	b.mu.Lock()
	b.failure = &broker.FatalError{
		Component: "live",
		Err:       errors.Wrap(err, "retry budget exhausted"),
	}
	b.mu.Unlock()
	return true
}

func (b *Broker) sleepBackoff(ctx context.Context, attempt int) {
	wait := b.cfg.Backoff.Next(attempt)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
