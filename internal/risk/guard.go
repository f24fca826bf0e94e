package risk

import (
	"fmt"

	"github.com/ggonzalez94/agent-sched/internal/model"
)

// Verdict is the outcome of a risk check. Reason is set only when the
// trade is blocked and is surfaced verbatim in the cycle result.
type Verdict struct {
	OK     bool
	Reason string
}

// DayStats is the agent's realized activity for the current UTC day,
// supplied by the run ledger.
type DayStats struct {
	Trades int
	PnL    float64
}

// Fraction of reconciled capital a single trade may commit, per profile.
var maxTradeFraction = map[model.RiskLevel]float64{
	model.RiskLow:    0.10,
	model.RiskMedium: 0.25,
	model.RiskHigh:   0.50,
}

// Guard applies the agent's static risk profile to a proposed trade.
// It never mutates state; the first failing check wins.
type Guard struct{}

func New() Guard { return Guard{} }

func (Guard) Check(agent model.Agent, signal model.TradeSignal, capital float64, day DayStats) Verdict {
	if signal.Amount <= 0 {
		return blocked("trade amount must be positive")
	}

	fraction, ok := maxTradeFraction[agent.RiskLevel]
	if !ok {
		fraction = maxTradeFraction[model.RiskLow]
	}
	if ceiling := capital * fraction; signal.Amount > ceiling {
		return blocked(fmt.Sprintf("amount %.4f exceeds %s risk ceiling %.4f", signal.Amount, agent.RiskLevel, ceiling))
	}

	if agent.MaxDailyTrades > 0 && day.Trades >= agent.MaxDailyTrades {
		return blocked(fmt.Sprintf("daily trade limit reached (%d)", agent.MaxDailyTrades))
	}
	if agent.DailyLossLimit > 0 && day.PnL <= -agent.DailyLossLimit {
		return blocked(fmt.Sprintf("daily loss limit reached (%.4f)", agent.DailyLossLimit))
	}
	if agent.MaxDrawdown > 0 && agent.CumulativePnL <= -agent.MaxDrawdown {
		return blocked(fmt.Sprintf("max drawdown exceeded (%.4f)", agent.MaxDrawdown))
	}

	return Verdict{OK: true}
}

func blocked(reason string) Verdict {
	return Verdict{OK: false, Reason: reason}
}
