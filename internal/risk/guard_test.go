package risk

import (
	"strings"
	"testing"

	"github.com/ggonzalez94/agent-sched/internal/model"
)

func TestGuardCheck(t *testing.T) {
	guard := New()

	tests := []struct {
		name       string
		agent      model.Agent
		signal     model.TradeSignal
		capital    float64
		day        DayStats
		wantOK     bool
		wantReason string
	}{
		{
			name:    "allows trade within all limits",
			agent:   model.Agent{RiskLevel: model.RiskMedium, MaxDailyTrades: 10},
			signal:  model.TradeSignal{Action: model.ActionBuy, Amount: 100},
			capital: 1000,
			wantOK:  true,
		},
		{
			name:       "blocks non-positive amount",
			agent:      model.Agent{RiskLevel: model.RiskHigh},
			signal:     model.TradeSignal{Action: model.ActionBuy, Amount: 0},
			capital:    1000,
			wantReason: "must be positive",
		},
		{
			name:       "blocks amount over low risk ceiling",
			agent:      model.Agent{RiskLevel: model.RiskLow},
			signal:     model.TradeSignal{Action: model.ActionBuy, Amount: 150},
			capital:    1000,
			wantReason: "risk ceiling",
		},
		{
			name:    "high risk allows larger fraction",
			agent:   model.Agent{RiskLevel: model.RiskHigh},
			signal:  model.TradeSignal{Action: model.ActionBuy, Amount: 450},
			capital: 1000,
			wantOK:  true,
		},
		{
			name:       "unknown risk level falls back to low ceiling",
			agent:      model.Agent{RiskLevel: "aggressive"},
			signal:     model.TradeSignal{Action: model.ActionBuy, Amount: 200},
			capital:    1000,
			wantReason: "risk ceiling",
		},
		{
			name:       "blocks when daily trade limit reached",
			agent:      model.Agent{RiskLevel: model.RiskMedium, MaxDailyTrades: 3},
			signal:     model.TradeSignal{Action: model.ActionBuy, Amount: 10},
			capital:    1000,
			day:        DayStats{Trades: 3},
			wantReason: "daily trade limit",
		},
		{
			name:       "blocks when daily loss limit hit",
			agent:      model.Agent{RiskLevel: model.RiskMedium, DailyLossLimit: 50},
			signal:     model.TradeSignal{Action: model.ActionBuy, Amount: 10},
			capital:    1000,
			day:        DayStats{PnL: -75},
			wantReason: "daily loss limit",
		},
		{
			name:       "blocks when cumulative drawdown exceeded",
			agent:      model.Agent{RiskLevel: model.RiskMedium, MaxDrawdown: 200, CumulativePnL: -250},
			signal:     model.TradeSignal{Action: model.ActionBuy, Amount: 10},
			capital:    1000,
			wantReason: "max drawdown",
		},
		{
			name:    "zero limits disable the optional checks",
			agent:   model.Agent{RiskLevel: model.RiskMedium, CumulativePnL: -9999},
			signal:  model.TradeSignal{Action: model.ActionBuy, Amount: 10},
			capital: 1000,
			day:     DayStats{Trades: 500, PnL: -9999},
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := guard.Check(tt.agent, tt.signal, tt.capital, tt.day)
			if verdict.OK != tt.wantOK {
				t.Fatalf("OK = %v, want %v (reason %q)", verdict.OK, tt.wantOK, verdict.Reason)
			}
			if !tt.wantOK && !strings.Contains(verdict.Reason, tt.wantReason) {
				t.Fatalf("reason %q does not contain %q", verdict.Reason, tt.wantReason)
			}
			if tt.wantOK && verdict.Reason != "" {
				t.Fatalf("allowed verdict carries reason %q", verdict.Reason)
			}
		})
	}
}
