package config

import (
	"errors"
	"fmt"
)

// Settings is the hot-reloadable strategy configuration the engine reads on
// every tick. Every strategy module is an optional record: nil means the
// module is switched off, so a disabled module's numbers can never be read.
type Settings struct {
	Alerts     AlertSettings       `json:"alerts" yaml:"alerts"`
	TakeProfit *TakeProfitSettings `json:"take_profit,omitempty" yaml:"take_profit,omitempty"`
	StopLoss   *StopLossRule       `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty"`
	Hedging    *HedgingRule        `json:"hedging,omitempty" yaml:"hedging,omitempty"`
	HedgeExit  HedgeExitSettings   `json:"hedge_exit" yaml:"hedge_exit"`
}

// AlertSettings drive audio/notification thresholds in the UI. The engine
// carries them for persistence only.
type AlertSettings struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	ProfitPercent float64 `json:"profit_percent" yaml:"profit_percent"`
	LossPercent   float64 `json:"loss_percent" yaml:"loss_percent"`
}

type TakeProfitMode string

const (
	ModeConventional TakeProfitMode = "CONVENTIONAL"
	ModeDynamic      TakeProfitMode = "DYNAMIC"
	ModeSmart        TakeProfitMode = "SMART"
	ModeGlobal       TakeProfitMode = "GLOBAL"
)

// TakeProfitSettings is a tagged union: Mode selects which of the variant
// records is meaningful, and Validate requires that one to be present.
type TakeProfitSettings struct {
	Mode         TakeProfitMode          `json:"mode" yaml:"mode"`
	Conventional *ConventionalTakeProfit `json:"conventional,omitempty" yaml:"conventional,omitempty"`
	Dynamic      *DynamicTakeProfit      `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
	Smart        *SmartTakeProfit        `json:"smart,omitempty" yaml:"smart,omitempty"`
	Global       *GlobalTakeProfit       `json:"global,omitempty" yaml:"global,omitempty"`
}

type ConventionalTakeProfit struct {
	MinPosition   float64 `json:"min_position" yaml:"min_position"`
	ProfitPercent float64 `json:"profit_percent" yaml:"profit_percent"`
	ClosePercent  float64 `json:"close_percent" yaml:"close_percent"`
}

type ProfitTier struct {
	ProfitPercent float64 `json:"profit_percent" yaml:"profit_percent"`
	ClosePercent  float64 `json:"close_percent" yaml:"close_percent"`
}

type DynamicTakeProfit struct {
	MinPosition float64      `json:"min_position" yaml:"min_position"`
	Tiers       []ProfitTier `json:"tiers" yaml:"tiers"`
}

type SmartTakeProfit struct {
	MinPosition     float64      `json:"min_position" yaml:"min_position"`
	Curve           []ProfitTier `json:"curve" yaml:"curve"`
	CallbackPercent float64      `json:"callback_percent" yaml:"callback_percent"`
}

type GlobalTakeProfit struct {
	TargetProfitUSDT float64 `json:"target_profit_usdt" yaml:"target_profit_usdt"`
	ClosePercent     float64 `json:"close_percent" yaml:"close_percent"`
}

// StopLossRule is the conventional (module 2) stop-loss.
type StopLossRule struct {
	MinPosition  float64 `json:"min_position" yaml:"min_position"`
	LossPercent  float64 `json:"loss_percent" yaml:"loss_percent"`
	ClosePercent float64 `json:"close_percent" yaml:"close_percent"`
}

// HedgingRule opens an opposite-side hedge once a position is down
// TriggerLossPercent. HedgeRatio is a percent of the original quantity.
type HedgingRule struct {
	MinPosition        float64 `json:"min_position" yaml:"min_position"`
	TriggerLossPercent float64 `json:"trigger_loss_percent" yaml:"trigger_loss_percent"`
	HedgeRatio         float64 `json:"hedge_ratio" yaml:"hedge_ratio"`
}

// HedgeExitSettings are the module 4 pair-exit strategies plus the
// safe-clear circuit breaker.
type HedgeExitSettings struct {
	OriginalProfitClear *OriginalProfitClear `json:"original_profit_clear,omitempty" yaml:"original_profit_clear,omitempty"`
	HedgeProfitClear    *HedgeProfitClear    `json:"hedge_profit_clear,omitempty" yaml:"hedge_profit_clear,omitempty"`
	CallbackProfitClear *CallbackProfitClear `json:"callback_profit_clear,omitempty" yaml:"callback_profit_clear,omitempty"`
	SafeClear           *SafeClear           `json:"safe_clear,omitempty" yaml:"safe_clear,omitempty"`
}

type OriginalProfitClear struct {
	HedgeStopLossPercent float64 `json:"hedge_stop_loss_percent" yaml:"hedge_stop_loss_percent"`
	OriginalCoverPercent float64 `json:"original_cover_percent" yaml:"original_cover_percent"`
}

type HedgeProfitClear struct {
	// HedgeOpenRatio replaces hedging.hedge_ratio while this strategy is on.
	HedgeOpenRatio    float64 `json:"hedge_open_ratio" yaml:"hedge_open_ratio"`
	HedgeCoverPercent float64 `json:"hedge_cover_percent" yaml:"hedge_cover_percent"`
	StopLossPercent   float64 `json:"stop_loss_percent" yaml:"stop_loss_percent"`
}

type CallbackProfitClear struct {
	TargetProfit float64 `json:"target_profit" yaml:"target_profit"`
	CallbackRate float64 `json:"callback_rate" yaml:"callback_rate"`
	CoverPercent float64 `json:"cover_percent" yaml:"cover_percent"`
}

type SafeClear struct {
	ProfitPercent float64 `json:"profit_percent" yaml:"profit_percent"`
	LossPercent   float64 `json:"loss_percent" yaml:"loss_percent"`
}

// TakesOver reports whether any module 4 debt-aware strategy is on. Safe
// clear does not count: it is a breaker, not a manager.
func (h HedgeExitSettings) TakesOver() bool {
	return h.OriginalProfitClear != nil || h.HedgeProfitClear != nil || h.CallbackProfitClear != nil
}

// ConventionalTakeProfit returns the rule the engine evaluates, or nil when
// take-profit is off or running a mode the engine does not evaluate.
func (s Settings) ConventionalTakeProfit() *ConventionalTakeProfit {
	if s.TakeProfit == nil || s.TakeProfit.Mode != ModeConventional {
		return nil
	}
	return s.TakeProfit.Conventional
}

// HedgeRatio is the fraction (not percent) of the original quantity a new
// hedge gets. Hedge-profit-clear's open ratio always wins when configured.
func (s Settings) HedgeRatio() float64 {
	if hp := s.HedgeExit.HedgeProfitClear; hp != nil {
		return hp.HedgeOpenRatio / 100
	}
	if s.Hedging != nil {
		return s.Hedging.HedgeRatio / 100
	}
	return 0
}

// Clone deep-copies the settings so snapshots never share records with the
// live configuration.
func (s Settings) Clone() Settings {
	out := s
	if s.TakeProfit != nil {
		tp := *s.TakeProfit
		if tp.Conventional != nil {
			c := *tp.Conventional
			tp.Conventional = &c
		}
		if tp.Dynamic != nil {
			d := *tp.Dynamic
			d.Tiers = append([]ProfitTier(nil), d.Tiers...)
			tp.Dynamic = &d
		}
		if tp.Smart != nil {
			sm := *tp.Smart
			sm.Curve = append([]ProfitTier(nil), sm.Curve...)
			tp.Smart = &sm
		}
		if tp.Global != nil {
			g := *tp.Global
			tp.Global = &g
		}
		out.TakeProfit = &tp
	}
	if s.StopLoss != nil {
		sl := *s.StopLoss
		out.StopLoss = &sl
	}
	if s.Hedging != nil {
		h := *s.Hedging
		out.Hedging = &h
	}
	if v := s.HedgeExit.OriginalProfitClear; v != nil {
		c := *v
		out.HedgeExit.OriginalProfitClear = &c
	}
	if v := s.HedgeExit.HedgeProfitClear; v != nil {
		c := *v
		out.HedgeExit.HedgeProfitClear = &c
	}
	if v := s.HedgeExit.CallbackProfitClear; v != nil {
		c := *v
		out.HedgeExit.CallbackProfitClear = &c
	}
	if v := s.HedgeExit.SafeClear; v != nil {
		c := *v
		out.HedgeExit.SafeClear = &c
	}
	return out
}

// Validate checks every configured module.
func (s Settings) Validate() error {
	var errs []error

	if tp := s.TakeProfit; tp != nil {
		switch tp.Mode {
		case ModeConventional:
			if tp.Conventional == nil {
				errs = append(errs, errors.New("take_profit.conventional is required for CONVENTIONAL mode"))
			} else {
				errs = append(errs, positive("take_profit.conventional.profit_percent", tp.Conventional.ProfitPercent))
				errs = append(errs, closePct("take_profit.conventional.close_percent", tp.Conventional.ClosePercent))
			}
		case ModeDynamic:
			if tp.Dynamic == nil || len(tp.Dynamic.Tiers) == 0 {
				errs = append(errs, errors.New("take_profit.dynamic.tiers are required for DYNAMIC mode"))
			}
		case ModeSmart:
			if tp.Smart == nil || len(tp.Smart.Curve) == 0 {
				errs = append(errs, errors.New("take_profit.smart.curve is required for SMART mode"))
			}
		case ModeGlobal:
			if tp.Global == nil {
				errs = append(errs, errors.New("take_profit.global is required for GLOBAL mode"))
			}
		default:
			errs = append(errs, fmt.Errorf("take_profit.mode %q is not one of CONVENTIONAL, DYNAMIC, SMART, GLOBAL", tp.Mode))
		}
	}

	if sl := s.StopLoss; sl != nil {
		errs = append(errs, positive("stop_loss.loss_percent", sl.LossPercent))
		errs = append(errs, closePct("stop_loss.close_percent", sl.ClosePercent))
	}

	if h := s.Hedging; h != nil {
		errs = append(errs, positive("hedging.trigger_loss_percent", h.TriggerLossPercent))
		errs = append(errs, positive("hedging.hedge_ratio", h.HedgeRatio))
	}

	he := s.HedgeExit
	if v := he.OriginalProfitClear; v != nil {
		errs = append(errs, positive("hedge_exit.original_profit_clear.hedge_stop_loss_percent", v.HedgeStopLossPercent))
		errs = append(errs, nonNegative("hedge_exit.original_profit_clear.original_cover_percent", v.OriginalCoverPercent))
	}
	if v := he.HedgeProfitClear; v != nil {
		errs = append(errs, positive("hedge_exit.hedge_profit_clear.hedge_open_ratio", v.HedgeOpenRatio))
		errs = append(errs, nonNegative("hedge_exit.hedge_profit_clear.hedge_cover_percent", v.HedgeCoverPercent))
		errs = append(errs, positive("hedge_exit.hedge_profit_clear.stop_loss_percent", v.StopLossPercent))
	}
	if v := he.CallbackProfitClear; v != nil {
		errs = append(errs, positive("hedge_exit.callback_profit_clear.target_profit", v.TargetProfit))
		errs = append(errs, positive("hedge_exit.callback_profit_clear.callback_rate", v.CallbackRate))
		errs = append(errs, nonNegative("hedge_exit.callback_profit_clear.cover_percent", v.CoverPercent))
	}
	if v := he.SafeClear; v != nil {
		errs = append(errs, positive("hedge_exit.safe_clear.profit_percent", v.ProfitPercent))
		errs = append(errs, positive("hedge_exit.safe_clear.loss_percent", v.LossPercent))
	}

	return errors.Join(errs...)
}

func positive(field string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}

func nonNegative(field string, v float64) error {
	if v < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

func closePct(field string, v float64) error {
	if v <= 0 || v > 100 {
		return fmt.Errorf("%s must be in (0, 100]", field)
	}
	return nil
}

// DefaultSettings hedges losing positions and lets hedge-profit-clear
// manage the pair, with conventional stop-loss/take-profit for the rest.
func DefaultSettings() Settings {
	return Settings{
		Alerts: AlertSettings{Enabled: true, ProfitPercent: 5, LossPercent: 5},
		TakeProfit: &TakeProfitSettings{
			Mode: ModeConventional,
			Conventional: &ConventionalTakeProfit{
				MinPosition:   1000,
				ProfitPercent: 3,
				ClosePercent:  100,
			},
		},
		StopLoss: &StopLossRule{
			MinPosition:  1000,
			LossPercent:  5,
			ClosePercent: 100,
		},
		Hedging: &HedgingRule{
			MinPosition:        1000,
			TriggerLossPercent: 1,
			HedgeRatio:         100,
		},
		HedgeExit: HedgeExitSettings{
			HedgeProfitClear: &HedgeProfitClear{
				HedgeOpenRatio:    100,
				HedgeCoverPercent: 5,
				StopLossPercent:   2,
			},
		},
	}
}
