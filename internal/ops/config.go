// Package ops loads and validates the runtime configuration shared by the
// backtest and live binaries.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/broker/live"
	"main/internal/broker/sim"
	"main/internal/exchange/okx"
	"main/internal/market"
	"main/internal/strategy"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Instruments []string       `json:"instruments"`
	Database    DatabaseConfig `json:"database"`
	Sim         SimConfig      `json:"sim"`
	Live        LiveConfig     `json:"live"`
	Exchange    ExchangeConfig `json:"exchange"`
	Strategy    StrategyConfig `json:"strategy"`
}

// DatabaseConfig points at the tick archive.
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// SimConfig describes the replay broker.
type SimConfig struct {
	Cash        float64 `json:"cash"`
	MakerFee    float64 `json:"makerFee"`
	TakerFee    float64 `json:"takerFee"`
	Slippage    float64 `json:"slippage"`
	FillPolicy  string  `json:"fillPolicy"` // "displayed" or "full"
	LatencyMs   int64   `json:"latencyMs"`
	ReportBinMs int64   `json:"reportBinMs"`
}

// LiveConfig describes the relay broker.
type LiveConfig struct {
	QueueSize    int     `json:"queueSize"`
	MaxRetries   int     `json:"maxRetries"`
	SubmitPerSec float64 `json:"submitPerSec"`
	SubmitBurst  int     `json:"submitBurst"`
}

// ExchangeConfig carries venue endpoints and credentials. Credentials may be
// left empty in the file and provided through OKX_API_KEY, OKX_SECRET_KEY,
// and OKX_PASSPHRASE instead.
type ExchangeConfig struct {
	APIKey        string `json:"apiKey"`
	SecretKey     string `json:"secretKey"`
	Passphrase    string `json:"passphrase"`
	Simulated     bool   `json:"simulated"`
	PublicURL     string `json:"publicUrl"`
	PrivateURL    string `json:"privateUrl"`
	ReadTimeoutMs int64  `json:"readTimeoutMs"`
}

// StrategyConfig describes the OFI momentum strategy and its executor.
type StrategyConfig struct {
	Instrument      string  `json:"instrument"`
	Notional        float64 `json:"notional"`
	SizeDigits      int     `json:"sizeDigits"`
	PriceDigits     int     `json:"priceDigits"`
	PriceOffset     float64 `json:"priceOffset"`
	HoldingMs       int64   `json:"holdingMs"`
	EventIntervalMs int64   `json:"eventIntervalMs"`
	OrderIDOffset   uint64  `json:"orderIdOffset"`
	WindowOfiMs     float64 `json:"windowOfiMs"`
	WindowEmaMs     float64 `json:"windowEmaMs"`
	Theta           float64 `json:"theta"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Instruments []market.Instrument
	DSN         string
	Sim         sim.Config
	Live        live.Config
	Exchange    okx.Config
	Strategy    StrategyConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if len(cfg.Instruments) == 0 {
		return Loaded{}, fmt.Errorf("instruments is empty")
	}
	instruments := make([]market.Instrument, 0, len(cfg.Instruments))
	for _, s := range cfg.Instruments {
		if s == "" {
			return Loaded{}, fmt.Errorf("instrument name is empty")
		}
		instruments = append(instruments, market.Instrument(s))
	}

	simCfg, err := resolveSim(cfg.Sim)
	if err != nil {
		return Loaded{}, err
	}
	if err := validateStrategy(cfg.Strategy, instruments); err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Instruments: instruments,
		DSN:         cfg.Database.DSN,
		Sim:         simCfg,
		Live: live.Config{
			Instruments:  instruments,
			QueueSize:    cfg.Live.QueueSize,
			MaxRetries:   cfg.Live.MaxRetries,
			SubmitPerSec: cfg.Live.SubmitPerSec,
			SubmitBurst:  cfg.Live.SubmitBurst,
		},
		Exchange: okx.Config{
			APIKey:      fromEnv(cfg.Exchange.APIKey, "OKX_API_KEY"),
			SecretKey:   fromEnv(cfg.Exchange.SecretKey, "OKX_SECRET_KEY"),
			Passphrase:  fromEnv(cfg.Exchange.Passphrase, "OKX_PASSPHRASE"),
			Simulated:   cfg.Exchange.Simulated,
			PublicURL:   cfg.Exchange.PublicURL,
			PrivateURL:  cfg.Exchange.PrivateURL,
			ReadTimeout: time.Duration(cfg.Exchange.ReadTimeoutMs) * time.Millisecond,
		},
		Strategy: cfg.Strategy,
	}, nil
}

func resolveSim(cfg SimConfig) (sim.Config, error) {
	var policy sim.FillPolicy
	switch cfg.FillPolicy {
	case "", "displayed":
		policy = sim.FillDisplayedSize
	case "full":
		policy = sim.FillFullSize
	default:
		return sim.Config{}, fmt.Errorf("unknown fill policy: %s", cfg.FillPolicy)
	}
	if cfg.Cash < 0 {
		return sim.Config{}, fmt.Errorf("sim cash must be >= 0")
	}
	if cfg.LatencyMs < 0 {
		return sim.Config{}, fmt.Errorf("sim latencyMs must be >= 0")
	}
	return sim.Config{
		Cash: cfg.Cash,
		Costs: sim.CostModel{
			MakerFee: cfg.MakerFee,
			TakerFee: cfg.TakerFee,
			Slippage: cfg.Slippage,
		},
		Policy:      policy,
		LatencyMs:   cfg.LatencyMs,
		ReportBinMs: cfg.ReportBinMs,
	}, nil
}

func validateStrategy(cfg StrategyConfig, instruments []market.Instrument) error {
	if cfg.Instrument == "" {
		return fmt.Errorf("strategy instrument is empty")
	}
	var known bool
	for _, inst := range instruments {
		if inst == market.Instrument(cfg.Instrument) {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("strategy instrument %s is not in instruments", cfg.Instrument)
	}
	if cfg.Notional <= 0 {
		return fmt.Errorf("strategy notional must be > 0")
	}
	if cfg.WindowOfiMs <= 0 || cfg.WindowEmaMs <= 0 {
		return fmt.Errorf("strategy windows must be > 0")
	}
	if cfg.Theta <= 0 {
		return fmt.Errorf("strategy theta must be > 0")
	}
	if cfg.OrderIDOffset >= 1<<16 {
		return fmt.Errorf("strategy orderIdOffset must be below 2^16")
	}
	return nil
}

// ValidateLive checks the parts only live trading needs.
func (l Loaded) ValidateLive() error {
	if l.Exchange.APIKey == "" || l.Exchange.SecretKey == "" || l.Exchange.Passphrase == "" {
		return fmt.Errorf("exchange credentials are missing")
	}
	return nil
}

// ValidateBacktest checks the parts only replay needs.
func (l Loaded) ValidateBacktest() error {
	if l.DSN == "" {
		return fmt.Errorf("database dsn is empty")
	}
	return nil
}

// BuildStrategy assembles the configured signaler and executor.
func (l Loaded) BuildStrategy() *strategy.SignalStrategy {
	inst := market.Instrument(l.Strategy.Instrument)
	signaler := strategy.NewOfiMomentum(strategy.OfiMomentumConfig{
		Instrument:  inst,
		WindowOfiMs: l.Strategy.WindowOfiMs,
		WindowEmaMs: l.Strategy.WindowEmaMs,
		Theta:       l.Strategy.Theta,
	})
	executor := strategy.NewNaiveLimitExecutor(strategy.LimitExecutorConfig{
		Instrument:      inst,
		Notional:        l.Strategy.Notional,
		SizeDigits:      l.Strategy.SizeDigits,
		PriceDigits:     l.Strategy.PriceDigits,
		PriceOffset:     l.Strategy.PriceOffset,
		HoldingMs:       l.Strategy.HoldingMs,
		EventIntervalMs: l.Strategy.EventIntervalMs,
		OrderIDOffset:   l.Strategy.OrderIDOffset,
	})
	return strategy.NewSignalStrategy(signaler, executor)
}

func fromEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}
