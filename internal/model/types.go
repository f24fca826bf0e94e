package model

import (
	"fmt"
	"strconv"
	"time"
)

type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
	ActionHold TradeAction = "hold"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Agent is a configured trading entity. The scheduler treats it as read-only
// except for Capital, which reconciliation may rewrite through the store.
type Agent struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Strategy       string    `json:"strategy"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Capital        float64   `json:"capital"`
	CumulativePnL  float64   `json:"cumulative_pnl"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	WalletAddress  string    `json:"wallet_address,omitempty"`
	AutoExecute    bool      `json:"auto_execute"`
	MaxDailyTrades int       `json:"max_daily_trades"`
	DailyLossLimit float64   `json:"daily_loss_limit"`
	SlippageBps    int64     `json:"slippage_bps,omitempty"`
	Active         bool      `json:"active"`
}

// Holding is one merged token position. Value is the best-effort
// native-unit equivalent, zero when it cannot be determined.
type Holding struct {
	Token   string  `json:"token"`
	Symbol  string  `json:"symbol,omitempty"`
	Balance float64 `json:"balance"`
	Value   float64 `json:"value"`
}

// PortfolioSnapshot is the per-agent, per-cycle observed on-chain state.
type PortfolioSnapshot struct {
	NativeBalance float64   `json:"native_balance"`
	Holdings      []Holding `json:"holdings"`
}

// TotalValue is the observed on-chain total in native units.
func (s PortfolioSnapshot) TotalValue() float64 {
	total := s.NativeBalance
	for _, h := range s.Holdings {
		total += h.Value
	}
	return total
}

// AgentContext is the immutable view handed to the strategy evaluator.
// Capital is the reconciled value for this cycle, which may differ from
// the value persisted when the cycle started.
type AgentContext struct {
	Agent    Agent
	Snapshot PortfolioSnapshot
	Capital  float64
}

// TradeSignal is an actionable recommendation from the strategy evaluator.
type TradeSignal struct {
	Action      TradeAction `json:"action"`
	Token       string      `json:"token"`
	TokenSymbol string      `json:"token_symbol"`
	Amount      float64     `json:"amount"`
	Confidence  float64     `json:"confidence"`
}

// Describe renders the signal the way result records report it,
// e.g. "buy FOO (confidence: 0.8)".
func (s TradeSignal) Describe() string {
	name := s.TokenSymbol
	if name == "" {
		name = s.Token
	}
	return fmt.Sprintf("%s %s (confidence: %s)", s.Action, name, strconv.FormatFloat(s.Confidence, 'f', -1, 64))
}

// EvalStatus is the terminal status of one agent in one cycle.
// Exactly one of these is recorded per evaluated agent.
type EvalStatus string

const (
	StatusSkipped         EvalStatus = "skipped"
	StatusNoSignal        EvalStatus = "no_signal"
	StatusProposalCreated EvalStatus = "proposal_created"
	StatusAutoExecuted    EvalStatus = "auto_executed"
	StatusRiskBlocked     EvalStatus = "risk_blocked"
	StatusExecutionFailed EvalStatus = "execution_failed"
	StatusExecutionError  EvalStatus = "execution_error"
	StatusError           EvalStatus = "error"
)

// AgentResult is one per-agent record in a cycle summary.
type AgentResult struct {
	AgentID    string     `json:"agent_id"`
	AgentName  string     `json:"agent_name"`
	Strategy   string     `json:"strategy"`
	Signal     string     `json:"signal,omitempty"`
	Status     EvalStatus `json:"status"`
	ProposalID string     `json:"proposal_id,omitempty"`
	TxHash     string     `json:"tx_hash,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// TokenInfo is per-token discovery metadata carried through the cycle
// for reporting.
type TokenInfo struct {
	Address        string `json:"address"`
	CreatedAtBlock uint64 `json:"created_at_block,omitempty"`
}

// CycleSummary aggregates one scheduler cycle.
type CycleSummary struct {
	CycleID          string        `json:"cycle_id"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	AgentsEvaluated  int           `json:"agents_evaluated"`
	AgentsSkipped    int           `json:"agents_skipped"`
	Signals          int           `json:"signals"`
	ProposalsCreated int           `json:"proposals_created"`
	AutoExecuted     int           `json:"auto_executed"`
	RiskBlocked      int           `json:"risk_blocked"`
	Errors           int           `json:"errors"`
	TokensDiscovered int           `json:"tokens_discovered"`
	TokensAnalyzed   int           `json:"tokens_analyzed"`
	Results          []AgentResult `json:"results"`
}

// SchedulerStatus is the GetStatus payload.
type SchedulerStatus struct {
	ActiveAgentCount      int           `json:"active_agent_count"`
	AutoExecuteAgentCount int           `json:"auto_execute_agent_count"`
	PendingProposalCount  int           `json:"pending_proposal_count"`
	MinIntervalMS         int64         `json:"min_interval_ms"`
	AutoLoopEnabled       bool          `json:"auto_loop_enabled"`
	LastRun               *CycleSummary `json:"last_run"`
}

// Proposal is a human-reviewable trade awaiting approval.
type Proposal struct {
	ID        string      `json:"id"`
	AgentID   string      `json:"agent_id"`
	Signal    TradeSignal `json:"signal"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

const (
	ProposalStatusPending  = "pending"
	ProposalStatusApproved = "approved"
	ProposalStatusRejected = "rejected"
)
