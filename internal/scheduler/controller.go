package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ggonzalez94/agent-sched/internal/config"
	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/strategy"
	"github.com/ggonzalez94/agent-sched/internal/universe"
)

// AgentSource lists the agents a cycle should consider.
type AgentSource interface {
	ListActiveAgents(ctx context.Context) ([]model.Agent, error)
}

// SnapshotFetcher assembles the per-agent portfolio view. It never
// fails: degraded sources yield zero/empty fields.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, wallet string) model.PortfolioSnapshot
}

// CapitalReconciler aligns persisted capital with the observed snapshot
// and returns the capital to use for the rest of the cycle.
type CapitalReconciler interface {
	Reconcile(ctx context.Context, agent model.Agent, snapshot model.PortfolioSnapshot) float64
}

// UniverseBuilder produces the cycle's candidate token set.
type UniverseBuilder interface {
	Build(ctx context.Context, callerTokens []string, interval time.Duration) universe.Universe
}

// ProposalCounter reports the pending human-review backlog for status.
type ProposalCounter interface {
	CountPendingProposals(ctx context.Context) (int, error)
}

// Controller runs evaluation cycles over the active agents. Cycles are
// strictly sequential: one RunCycle call at a time, agents processed in
// input order, so cooldown and capital writes need no locking.
type Controller struct {
	agents     AgentSource
	universe   UniverseBuilder
	portfolio  SnapshotFetcher
	reconciler CapitalReconciler
	evaluator  strategy.Evaluator
	router     router
	cooldowns  CooldownStore
	ledger     RunLedger
	proposals  ProposalCounter
	days       *dayCounters
	autoLoop   bool
	log        *zap.Logger

	now func() time.Time
}

type Deps struct {
	Agents     AgentSource
	Universe   UniverseBuilder
	Portfolio  SnapshotFetcher
	Reconciler CapitalReconciler
	Evaluator  strategy.Evaluator
	Guard      RiskChecker
	Executor   Executor
	Cooldowns  CooldownStore
	Ledger     RunLedger
	Proposals  ProposalCounter
	AutoLoop   bool
	Log        *zap.Logger
}

func NewController(deps Deps) *Controller {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	cooldowns := deps.Cooldowns
	if cooldowns == nil {
		cooldowns = NewMemoryCooldowns()
	}
	ledger := deps.Ledger
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Controller{
		agents:     deps.Agents,
		universe:   deps.Universe,
		portfolio:  deps.Portfolio,
		reconciler: deps.Reconciler,
		evaluator:  deps.Evaluator,
		router:     router{guard: deps.Guard, executor: deps.Executor, log: log},
		cooldowns:  cooldowns,
		ledger:     ledger,
		proposals:  deps.Proposals,
		days:       newDayCounters(),
		autoLoop:   deps.AutoLoop,
		log:        log,
		now:        time.Now,
	}
}

// RunCycle evaluates every eligible active agent once. The returned
// summary is always structured: per-agent failures surface as result
// statuses, and only a failure to list the agents aborts the cycle.
func (c *Controller) RunCycle(ctx context.Context, tokens []string, interval time.Duration) (model.CycleSummary, error) {
	start := c.now().UTC()
	summary := model.CycleSummary{
		CycleID:   uuid.NewString(),
		StartedAt: start,
	}

	agents, err := c.agents.ListActiveAgents(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active agents: %w", err)
	}

	u := c.universe.Build(ctx, tokens, interval)
	summary.TokensDiscovered = u.DiscoveredCount
	summary.TokensAnalyzed = len(u.Tokens)
	c.log.Info("cycle started",
		zap.String("cycle_id", summary.CycleID),
		zap.Int("agents", len(agents)),
		zap.Int("tokens", len(u.Tokens)),
		zap.Duration("interval", u.Interval))

	for _, agent := range agents {
		result := c.processAgent(ctx, agent, u, start)
		summary.Results = append(summary.Results, result)
		switch result.Status {
		case model.StatusSkipped:
			summary.AgentsSkipped++
			continue
		case model.StatusProposalCreated:
			summary.ProposalsCreated++
		case model.StatusAutoExecuted:
			summary.AutoExecuted++
		case model.StatusRiskBlocked:
			summary.RiskBlocked++
		case model.StatusError:
			summary.Errors++
		}
		summary.AgentsEvaluated++
		if result.Signal != "" {
			summary.Signals++
		}
	}

	summary.FinishedAt = c.now().UTC()
	c.ledger.Record(summary)
	c.log.Info("cycle finished",
		zap.String("cycle_id", summary.CycleID),
		zap.Int("evaluated", summary.AgentsEvaluated),
		zap.Int("skipped", summary.AgentsSkipped),
		zap.Int("auto_executed", summary.AutoExecuted),
		zap.Int("proposals", summary.ProposalsCreated),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

// processAgent runs steps 2-7 for one agent and never lets a failure
// escape: panics and errors become a single error-status result.
func (c *Controller) processAgent(ctx context.Context, agent model.Agent, u universe.Universe, cycleStart time.Time) (result model.AgentResult) {
	result = model.AgentResult{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Strategy:  agent.Strategy,
	}
	defer func() {
		if r := recover(); r != nil {
			result.Status = model.StatusError
			result.Error = fmt.Sprintf("panic: %v", r)
			c.log.Error("agent evaluation panicked",
				zap.String("agent_id", agent.ID),
				zap.Any("panic", r))
		}
	}()

	if last, ok := c.cooldowns.LastEval(agent.ID); ok && cycleStart.Sub(last) < u.Interval {
		result.Status = model.StatusSkipped
		return result
	}
	// Once the gate is passed the cooldown write sticks, whatever the
	// terminal status turns out to be.
	c.cooldowns.MarkEval(agent.ID, cycleStart)

	snapshot := model.PortfolioSnapshot{}
	if agent.WalletAddress != "" {
		snapshot = c.portfolio.Fetch(ctx, agent.WalletAddress)
	}
	capital := c.reconciler.Reconcile(ctx, agent, snapshot)

	agentCtx := model.AgentContext{Agent: agent, Snapshot: snapshot, Capital: capital}
	outcome, err := c.evaluator.Evaluate(ctx, agentCtx, u.Tokens, !agent.AutoExecute, u.Metadata)
	if err != nil {
		result.Status = model.StatusError
		result.Error = err.Error()
		c.log.Warn("agent evaluation failed",
			zap.String("agent_id", agent.ID),
			zap.Error(err))
		return result
	}

	day := c.days.stats(agent.ID, cycleStart)
	if c.router.route(ctx, agent, capital, outcome, day, &result) {
		c.days.recordTrade(agent.ID, cycleStart)
	}
	return result
}

// GetStatus reports the controller's configuration and last run.
func (c *Controller) GetStatus(ctx context.Context) (model.SchedulerStatus, error) {
	status := model.SchedulerStatus{
		MinIntervalMS:   config.MinInterval.Milliseconds(),
		AutoLoopEnabled: c.autoLoop,
		LastRun:         c.ledger.Last(),
	}
	agents, err := c.agents.ListActiveAgents(ctx)
	if err != nil {
		return status, fmt.Errorf("list active agents: %w", err)
	}
	status.ActiveAgentCount = len(agents)
	for _, agent := range agents {
		if agent.AutoExecute {
			status.AutoExecuteAgentCount++
		}
	}
	if c.proposals != nil {
		count, err := c.proposals.CountPendingProposals(ctx)
		if err != nil {
			return status, fmt.Errorf("count pending proposals: %w", err)
		}
		status.PendingProposalCount = count
	}
	return status, nil
}
