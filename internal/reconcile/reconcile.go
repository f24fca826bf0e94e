package reconcile

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/ggonzalez94/agent-sched/internal/config"
	"github.com/ggonzalez94/agent-sched/internal/model"
)

// CapitalStore is the slice of the state store reconciliation needs.
type CapitalStore interface {
	ReadCapital(ctx context.Context, agentID string) (float64, error)
	WriteCapital(ctx context.Context, agentID string, value float64) error
}

// Reconciler aligns an agent's persisted capital with the observed
// on-chain portfolio total once per cycle.
type Reconciler struct {
	store CapitalStore
	log   *zap.Logger
}

func New(store CapitalStore, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, log: log}
}

// Reconcile compares the persisted capital against the snapshot total and
// rewrites the stored value when the drift exceeds the threshold. The
// corrected value is used only once durably persisted: if the write
// fails the correction is abandoned for this cycle and the old value
// stands. Reconciliation never blocks evaluation.
func (r *Reconciler) Reconcile(ctx context.Context, agent model.Agent, snapshot model.PortfolioSnapshot) float64 {
	persisted, err := r.store.ReadCapital(ctx, agent.ID)
	if err != nil {
		r.log.Warn("capital read failed, using configured value",
			zap.String("agent_id", agent.ID),
			zap.Error(err))
		persisted = agent.Capital
	}

	observed := snapshot.TotalValue()
	drift := math.Abs(observed - persisted)
	if drift <= config.DriftThreshold {
		return persisted
	}

	r.log.Info("capital drift detected",
		zap.String("agent_id", agent.ID),
		zap.Float64("persisted", persisted),
		zap.Float64("observed", observed),
		zap.Float64("drift", drift))

	if err := r.store.WriteCapital(ctx, agent.ID, observed); err != nil {
		r.log.Warn("capital rewrite failed, keeping persisted value",
			zap.String("agent_id", agent.ID),
			zap.Error(err))
		return persisted
	}
	return observed
}
