package okx

import (
	"encoding/json"
	"strconv"

	"github.com/yanun0323/errors"

	"main/internal/broker/live"
	"main/internal/market"
)

const (
	channelBboTbt = "bbo-tbt"
	channelTrades = "trades"
	channelOrders = "orders"
)

type pushArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// pushFrame covers every inbound frame shape: channel pushes, event frames
// (subscribe/login/error), and order operation responses.
type pushFrame struct {
	Event string            `json:"event"`
	Code  string            `json:"code"`
	Msg   string            `json:"msg"`
	ID    string            `json:"id"`
	Op    string            `json:"op"`
	Arg   pushArg           `json:"arg"`
	Data  []json.RawMessage `json:"data"`
}

type depthData struct {
	Asks      [][4]string `json:"asks"`
	Bids      [][4]string `json:"bids"`
	Ts        string      `json:"ts"`
	SeqID     int64       `json:"seqId"`
	PrevSeqID int64       `json:"prevSeqId"`
}

type tradesData struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

type ordersData struct {
	InstID       string `json:"instId"`
	ClOrdID      string `json:"clOrdId"`
	State        string `json:"state"`
	Side         string `json:"side"`
	Sz           string `json:"sz"`
	FillSz       string `json:"fillSz"`
	AccFillSz    string `json:"accFillSz"`
	FillPx       string `json:"fillPx"`
	CancelSource string `json:"cancelSource"`
	AmendResult  string `json:"amendResult"`
	ExecType     string `json:"execType"`
	UTime        string `json:"uTime"`
}

type opResponseData struct {
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

// decoder turns raw frames into events, tracking book sequence numbers per
// instrument to detect gaps. One decoder lives per session; a reconnect
// starts fresh.
type decoder struct {
	lastSeq map[string]int64
}

func newDecoder() *decoder {
	return &decoder{lastSeq: make(map[string]int64)}
}

// decode translates one frame. A nil event with nil error means the frame
// carries nothing for the engine (heartbeats, subscribe confirmations,
// successful op responses). Errors are session-fatal; live.ErrSequenceGap
// forces a resync.
func (d *decoder) decode(data []byte) (market.Event, error) {
	if string(data) == "pong" {
		return nil, nil
	}

	var frame pushFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}

	if frame.Event != "" {
		if frame.Event == "error" {
			return nil, errors.Errorf("exchange error %s: %s", frame.Code, frame.Msg)
		}
		return nil, nil
	}

	if frame.Op != "" {
		return decodeOpResponse(frame)
	}

	if len(frame.Data) == 0 {
		return nil, nil
	}
	switch frame.Arg.Channel {
	case channelBboTbt:
		return d.decodeQuote(frame.Arg.InstID, frame.Data[0])
	case channelTrades:
		return decodeTrade(frame.Data[0])
	case channelOrders:
		return decodeOrder(frame.Arg.InstID, frame.Data[0])
	default:
		return nil, nil
	}
}

// decodeOpResponse surfaces failed order operations as Reject events.
// Successful operations are silent here; the orders channel reports them.
func decodeOpResponse(frame pushFrame) (market.Event, error) {
	if frame.Code == "0" {
		return nil, nil
	}
	if len(frame.Data) == 0 {
		return nil, errors.Errorf("order op %s failed %s: %s", frame.Op, frame.Code, frame.Msg)
	}
	var resp opResponseData
	if err := json.Unmarshal(frame.Data[0], &resp); err != nil {
		return nil, errors.Wrap(err, "decode op response")
	}
	id, err := strconv.ParseUint(resp.ClOrdID, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "op response client order id").With("clOrdId", resp.ClOrdID)
	}
	return market.Reject{
		OrderID: id,
		Ts:      nowMs(),
		Reason:  resp.SCode + ": " + resp.SMsg,
	}, nil
}

func (d *decoder) decodeQuote(instID string, raw json.RawMessage) (market.Event, error) {
	var depth depthData
	if err := json.Unmarshal(raw, &depth); err != nil {
		return nil, errors.Wrap(err, "decode bbo")
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return nil, errors.Errorf("bbo push without levels for %s", instID)
	}

	if depth.PrevSeqID > 0 {
		if last, ok := d.lastSeq[instID]; ok && depth.PrevSeqID != last {
			return nil, errors.Wrap(live.ErrSequenceGap, "bbo stream").
				With("instId", instID).
				With("prevSeqId", depth.PrevSeqID).
				With("lastSeqId", last)
		}
	}
	if depth.SeqID > 0 {
		d.lastSeq[instID] = depth.SeqID
	}

	ts, err := strconv.ParseInt(depth.Ts, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "bbo ts")
	}
	bidPx, err := parseF(depth.Bids[0][0])
	if err != nil {
		return nil, err
	}
	bidSz, err := parseF(depth.Bids[0][1])
	if err != nil {
		return nil, err
	}
	askPx, err := parseF(depth.Asks[0][0])
	if err != nil {
		return nil, err
	}
	askSz, err := parseF(depth.Asks[0][1])
	if err != nil {
		return nil, err
	}

	return market.Quote{
		Instrument: market.Instrument(instID),
		Ts:         ts,
		BidPrice:   bidPx,
		BidSize:    bidSz,
		AskPrice:   askPx,
		AskSize:    askSz,
	}, nil
}

func decodeTrade(raw json.RawMessage) (market.Event, error) {
	var t tradesData
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.Wrap(err, "decode trade")
	}
	ts, err := strconv.ParseInt(t.Ts, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "trade ts")
	}
	price, err := parseF(t.Px)
	if err != nil {
		return nil, err
	}
	size, err := parseF(t.Sz)
	if err != nil {
		return nil, err
	}
	side := market.SideSell
	if t.Side == "buy" {
		side = market.SideBuy
	}
	return market.Trade{
		Instrument: market.Instrument(t.InstID),
		Ts:         ts,
		Price:      price,
		Size:       size,
		Side:       side,
		TradeID:    t.TradeID,
	}, nil
}

// decodeOrder classifies an orders-channel push: a nonzero fillSz means a
// fill, a cancel source means cancellation, everything else acknowledges the
// order (placement or amend).
func decodeOrder(instID string, raw json.RawMessage) (market.Event, error) {
	var o ordersData
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, errors.Wrap(err, "decode order push")
	}
	id, err := strconv.ParseUint(o.ClOrdID, 10, 64)
	if err != nil {
		// Not an order of ours (manual trade, other session).
		return nil, nil
	}
	ts, err := strconv.ParseInt(o.UTime, 10, 64)
	if err != nil {
		ts = nowMs()
	}

	fillSz, _ := parseF(o.FillSz)
	switch {
	case fillSz > 0:
		size, err := parseF(o.Sz)
		if err != nil {
			return nil, err
		}
		accFill, err := parseF(o.AccFillSz)
		if err != nil {
			return nil, err
		}
		fillPx, err := parseF(o.FillPx)
		if err != nil {
			return nil, err
		}
		side := market.SideSell
		if o.Side == "buy" {
			side = market.SideBuy
		}
		exec := market.ExecMaker
		if o.ExecType == "T" {
			exec = market.ExecTaker
		}
		remaining := size - accFill
		if remaining < 0 {
			remaining = 0
		}
		return market.Fill{
			OrderID:    id,
			Instrument: market.Instrument(instID),
			Ts:         ts,
			Price:      fillPx,
			Size:       fillSz,
			Remaining:  remaining,
			Side:       side,
			Exec:       exec,
		}, nil
	case o.CancelSource != "" && o.CancelSource != "0":
		return market.CancelAck{OrderID: id, Ts: ts}, nil
	case o.State == "canceled":
		return market.CancelAck{OrderID: id, Ts: ts}, nil
	default:
		return market.OrderAck{OrderID: id, Ts: ts}, nil
	}
}

func parseF(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse number").With("value", s)
	}
	return v, nil
}
