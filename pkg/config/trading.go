package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trading modes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// TradingConfig is the hot-reloadable trading policy.
type TradingConfig struct {
	Mode                string   `yaml:"mode" json:"mode"`
	Leverage            int      `yaml:"leverage" json:"leverage"` // 0 = use the signal's leverage
	MaxFuturesTrade     int      `yaml:"max_futures_trade" json:"max_futures_trade"`
	MaxSpotTrade        int      `yaml:"max_spot_trade" json:"max_spot_trade"`
	MaxDailyLoss        float64  `yaml:"max_daily_loss" json:"max_daily_loss"`
	FuturesPositionSize float64  `yaml:"futures_position_size" json:"futures_position_size"`
	SpotPositionSize    float64  `yaml:"spot_position_size" json:"spot_position_size"`
	Blacklist           []string `yaml:"blacklist" json:"blacklist"`
	IsTradingEnabled    bool     `yaml:"is_trading_enabled" json:"is_trading_enabled"`
	MinConfidence       float64  `yaml:"min_confidence" json:"min_confidence"`
	MaxRiskReward       float64  `yaml:"max_risk_reward" json:"max_risk_reward"`
}

// DefaultTradingConfig returns the settings written when no file exists.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Mode:                ModePaper,
		Leverage:            0,
		MaxFuturesTrade:     2,
		MaxSpotTrade:        1,
		MaxDailyLoss:        300,
		FuturesPositionSize: 150,
		SpotPositionSize:    100,
		Blacklist:           []string{},
		IsTradingEnabled:    true,
		MinConfidence:       0.3,
		MaxRiskReward:       5.0,
	}
}

// Clone returns a copy that shares no slices with c.
func (c TradingConfig) Clone() TradingConfig {
	c.Blacklist = append([]string{}, c.Blacklist...)
	return c
}

// IsLive reports whether orders go to production endpoints.
func (c TradingConfig) IsLive() bool { return c.Mode == ModeLive }

// IsBlacklisted checks symbol membership, case-sensitively.
func (c TradingConfig) IsBlacklisted(symbol string) bool {
	return slices.Contains(c.Blacklist, symbol)
}

// Normalize maps legacy values onto the current vocabulary.
func (c *TradingConfig) Normalize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "demo" {
		c.Mode = ModePaper
	}
	if c.Blacklist == nil {
		c.Blacklist = []string{}
	}
}

// Validate rejects settings the executor cannot act on.
func (c TradingConfig) Validate() error {
	var errs []error
	if c.Mode != ModePaper && c.Mode != ModeLive {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModePaper, ModeLive, c.Mode))
	}
	if c.Leverage < 0 || c.Leverage > 125 {
		errs = append(errs, fmt.Errorf("leverage must be within 0..125, got %d", c.Leverage))
	}
	if c.MaxFuturesTrade < 0 || c.MaxSpotTrade < 0 {
		errs = append(errs, errors.New("position limits must not be negative"))
	}
	if c.MaxDailyLoss <= 0 {
		errs = append(errs, errors.New("max_daily_loss must be positive"))
	}
	if c.FuturesPositionSize <= 0 || c.SpotPositionSize <= 0 {
		errs = append(errs, errors.New("position sizes must be positive"))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min_confidence must be within 0..1, got %g", c.MinConfidence))
	}
	if c.MaxRiskReward <= 0 {
		errs = append(errs, errors.New("max_risk_reward must be positive"))
	}
	return errors.Join(errs...)
}

// ParseTradingConfig decodes YAML over the defaults, so missing keys keep their default.
func ParseTradingConfig(data []byte) (TradingConfig, error) {
	cfg := DefaultTradingConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TradingConfig{}, fmt.Errorf("parse trading config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return TradingConfig{}, fmt.Errorf("invalid trading config: %w", err)
	}
	return cfg, nil
}

// encode renders c for writing back to disk.
func (c TradingConfig) encode() ([]byte, error) {
	return yaml.Marshal(c)
}
