package strategy

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/registry"
)

// Outcome is what one evaluation produces. Signal is nil when the
// strategy sees nothing actionable; ProposalID is set only when the
// evaluator was asked to persist a proposal and did so.
type Outcome struct {
	Signal     *model.TradeSignal
	ProposalID string
}

// Evaluator turns an agent's context and the cycle's token universe
// into at most one trade signal.
type Evaluator interface {
	Evaluate(ctx context.Context, agentCtx model.AgentContext, universe []string, autoPropose bool, metadata map[string]model.TokenInfo) (Outcome, error)
}

// ProposalStore persists evaluator-created proposals for manual agents.
type ProposalStore interface {
	SaveProposal(ctx context.Context, proposal model.Proposal) error
}

const signalThreshold = 0.6

// ThresholdEvaluator is the default strategy. It scores every candidate
// token deterministically from the agent's strategy name and the token
// address, boosts freshly discovered tokens, and emits a signal only
// when the best score clears the threshold. Deterministic scoring keeps
// repeated cycles reproducible and testable.
type ThresholdEvaluator struct {
	proposals ProposalStore
	chainID   int64
	log       *zap.Logger
}

func NewThresholdEvaluator(proposals ProposalStore, chainID int64, log *zap.Logger) *ThresholdEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &ThresholdEvaluator{proposals: proposals, chainID: chainID, log: log}
}

func (e *ThresholdEvaluator) Evaluate(ctx context.Context, agentCtx model.AgentContext, universe []string, autoPropose bool, metadata map[string]model.TokenInfo) (Outcome, error) {
	if len(universe) == 0 || agentCtx.Capital <= 0 {
		return Outcome{}, nil
	}

	held := make(map[string]model.Holding, len(agentCtx.Snapshot.Holdings))
	for _, h := range agentCtx.Snapshot.Holdings {
		held[strings.ToLower(h.Token)] = h
	}

	var (
		bestToken string
		bestScore float64
	)
	for _, token := range universe {
		score := tokenScore(agentCtx.Agent.Strategy, token)
		if _, discovered := metadata[strings.ToLower(token)]; discovered {
			score = math.Min(1, score+0.15)
		}
		if score > bestScore {
			bestScore = score
			bestToken = token
		}
	}
	if bestScore < signalThreshold {
		return Outcome{}, nil
	}

	signal := model.TradeSignal{
		Token:      bestToken,
		Confidence: math.Round(bestScore*100) / 100,
	}
	signal.TokenSymbol = registry.LookupSymbol(e.chainID, bestToken)
	if holding, ok := held[strings.ToLower(bestToken)]; ok && holding.Balance > 0 {
		signal.Action = model.ActionSell
		signal.Amount = holding.Balance / 2
	} else {
		signal.Action = model.ActionBuy
		signal.Amount = agentCtx.Capital * 0.1 * signal.Confidence
	}
	if signal.Amount <= 0 {
		return Outcome{}, nil
	}

	outcome := Outcome{Signal: &signal}
	if autoPropose {
		proposal := model.Proposal{
			ID:        uuid.NewString(),
			AgentID:   agentCtx.Agent.ID,
			Signal:    signal,
			Status:    model.ProposalStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.proposals.SaveProposal(ctx, proposal); err != nil {
			return Outcome{}, fmt.Errorf("persist proposal: %w", err)
		}
		outcome.ProposalID = proposal.ID
		e.log.Debug("proposal created",
			zap.String("agent_id", agentCtx.Agent.ID),
			zap.String("proposal_id", proposal.ID),
			zap.String("signal", signal.Describe()))
	}
	return outcome, nil
}

// tokenScore maps (strategy, token) to a stable value in [0, 1).
func tokenScore(strategy, token string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strategy)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.ToLower(token)))
	return float64(h.Sum64()%10000) / 10000
}
