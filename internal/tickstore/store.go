package tickstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"main/internal/market"
)

// BboRow is the persisted best-bid/offer record.
type BboRow struct {
	ID         uint64 `gorm:"primaryKey"`
	Instrument string `gorm:"size:32;index:idx_bbo_inst_ts,priority:1"`
	Ts         int64  `gorm:"index:idx_bbo_inst_ts,priority:2"`
	BidPrice   float64
	BidSize    float64
	AskPrice   float64
	AskSize    float64
}

// TableName maps BboRow to the ingestion pipeline's table.
func (BboRow) TableName() string { return "bbo" }

// TradeRow is the persisted public trade record.
type TradeRow struct {
	ID         uint64 `gorm:"primaryKey"`
	Instrument string `gorm:"size:32;index:idx_trade_inst_ts,priority:1"`
	Ts         int64  `gorm:"index:idx_trade_inst_ts,priority:2"`
	Price      float64
	Size       float64
	Side       int16
	TradeID    string `gorm:"size:64"`
}

// TableName maps TradeRow to the ingestion pipeline's table.
func (TradeRow) TableName() string { return "trades" }

// Store reads historical ticks from the relational store the ingestion
// pipeline writes to.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tick tables when missing.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&BboRow{}, &TradeRow{})
}

// FetchRange loads all ticks for one instrument in [fromTs, toTs) and
// returns a cursor over them, quotes and trades interleaved by timestamp.
func (s *Store) FetchRange(ctx context.Context, inst market.Instrument, fromTs, toTs int64) (Cursor, error) {
	var bbos []BboRow
	err := s.db.WithContext(ctx).
		Where("instrument = ? AND ts >= ? AND ts < ?", string(inst), fromTs, toTs).
		Order("ts asc, id asc").
		Find(&bbos).Error
	if err != nil {
		return nil, fmt.Errorf("tickstore: query bbo: %w", err)
	}

	var trades []TradeRow
	err = s.db.WithContext(ctx).
		Where("instrument = ? AND ts >= ? AND ts < ?", string(inst), fromTs, toTs).
		Order("ts asc, id asc").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("tickstore: query trades: %w", err)
	}

	return NewMemoryCursor(interleave(bbos, trades)), nil
}

// interleave merges the two sorted row sets by timestamp, quotes first on
// ties so the book is current before the trade that printed against it.
func interleave(bbos []BboRow, trades []TradeRow) []market.Event {
	events := make([]market.Event, 0, len(bbos)+len(trades))
	i, j := 0, 0
	for i < len(bbos) && j < len(trades) {
		if bbos[i].Ts <= trades[j].Ts {
			events = append(events, bbos[i].event())
			i++
		} else {
			events = append(events, trades[j].event())
			j++
		}
	}
	for ; i < len(bbos); i++ {
		events = append(events, bbos[i].event())
	}
	for ; j < len(trades); j++ {
		events = append(events, trades[j].event())
	}
	return events
}

func (r BboRow) event() market.Event {
	return market.Quote{
		Instrument: market.Instrument(r.Instrument),
		Ts:         r.Ts,
		BidPrice:   r.BidPrice,
		BidSize:    r.BidSize,
		AskPrice:   r.AskPrice,
		AskSize:    r.AskSize,
	}
}

func (r TradeRow) event() market.Event {
	return market.Trade{
		Instrument: market.Instrument(r.Instrument),
		Ts:         r.Ts,
		Price:      r.Price,
		Size:       r.Size,
		Side:       market.Side(r.Side),
		TradeID:    r.TradeID,
	}
}
