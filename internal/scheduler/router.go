package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/ggonzalez94/agent-sched/internal/config"
	"github.com/ggonzalez94/agent-sched/internal/execution"
	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/risk"
	"github.com/ggonzalez94/agent-sched/internal/strategy"
)

// Executor is the trade submission collaborator. A returned error means
// transport, signing, or timeout trouble; a Result with Success=false
// is a trade the chain rejected.
type Executor interface {
	Execute(ctx context.Context, req execution.Request) (execution.Result, error)
}

// RiskChecker gates auto-executed trades against the agent's profile.
type RiskChecker interface {
	Check(agent model.Agent, signal model.TradeSignal, capital float64, day risk.DayStats) risk.Verdict
}

// router turns an evaluator outcome into exactly one terminal status.
type router struct {
	guard    RiskChecker
	executor Executor
	log      *zap.Logger
}

// route fills Status and the status-specific fields of result. It
// reports whether a trade was actually executed so the caller can bump
// the agent's daily counters.
func (r *router) route(ctx context.Context, agent model.Agent, capital float64, outcome strategy.Outcome, day risk.DayStats, result *model.AgentResult) bool {
	if outcome.Signal != nil {
		result.Signal = outcome.Signal.Describe()
	}

	if !agent.AutoExecute {
		if outcome.ProposalID != "" {
			result.Status = model.StatusProposalCreated
			result.ProposalID = outcome.ProposalID
		} else {
			result.Status = model.StatusNoSignal
		}
		return false
	}

	if outcome.Signal == nil {
		result.Status = model.StatusNoSignal
		return false
	}
	signal := *outcome.Signal

	verdict := r.guard.Check(agent, signal, capital, day)
	if !verdict.OK {
		result.Status = model.StatusRiskBlocked
		result.Error = verdict.Reason
		r.log.Info("trade blocked by risk guard",
			zap.String("agent_id", agent.ID),
			zap.String("reason", verdict.Reason))
		return false
	}

	slippage := agent.SlippageBps
	if slippage <= 0 {
		slippage = config.DefaultSlippageBps
	}
	execCtx, cancel := context.WithTimeout(ctx, config.ExecTimeout)
	defer cancel()
	res, err := r.executor.Execute(execCtx, execution.Request{
		AgentID:     agent.ID,
		Action:      signal.Action,
		Token:       signal.Token,
		Amount:      signal.Amount,
		SlippageBps: slippage,
	})
	switch {
	case err != nil:
		result.Status = model.StatusExecutionError
		result.Error = err.Error()
		return false
	case !res.Success:
		result.Status = model.StatusExecutionFailed
		result.Error = res.FailureReason
		result.TxHash = res.TxHash
		return false
	default:
		result.Status = model.StatusAutoExecuted
		result.TxHash = res.TxHash
		return true
	}
}
