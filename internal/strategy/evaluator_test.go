package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/ggonzalez94/agent-sched/internal/model"
)

type fakeProposalStore struct {
	saved []model.Proposal
	err   error
}

func (f *fakeProposalStore) SaveProposal(_ context.Context, p model.Proposal) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, p)
	return nil
}

// pickToken finds a token the evaluator scores above threshold for this
// strategy, so tests do not hard-code hash values.
func pickToken(t *testing.T, strategy string, above bool) string {
	t.Helper()
	candidates := []string{
		"0x0000000000000000000000000000000000000001",
		"0x0000000000000000000000000000000000000002",
		"0x0000000000000000000000000000000000000003",
		"0x0000000000000000000000000000000000000004",
		"0x0000000000000000000000000000000000000005",
		"0x0000000000000000000000000000000000000006",
		"0x0000000000000000000000000000000000000007",
		"0x0000000000000000000000000000000000000008",
		"0x0000000000000000000000000000000000000009",
		"0x000000000000000000000000000000000000000a",
		"0x000000000000000000000000000000000000000b",
		"0x000000000000000000000000000000000000000c",
	}
	for _, c := range candidates {
		score := tokenScore(strategy, c)
		if above && score >= signalThreshold {
			return c
		}
		if !above && score < signalThreshold-0.2 {
			return c
		}
	}
	t.Fatalf("no candidate token with score above=%v for strategy %q", above, strategy)
	return ""
}

func agentCtx(capital float64) model.AgentContext {
	return model.AgentContext{
		Agent:   model.Agent{ID: "agent-1", Strategy: "momentum"},
		Capital: capital,
	}
}

func TestEvaluateEmptyUniverseYieldsNoSignal(t *testing.T) {
	e := NewThresholdEvaluator(&fakeProposalStore{}, 1, nil)
	out, err := e.Evaluate(context.Background(), agentCtx(1000), nil, false, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Signal != nil || out.ProposalID != "" {
		t.Fatalf("expected empty outcome, got %+v", out)
	}
}

func TestEvaluateBelowThresholdYieldsNoSignal(t *testing.T) {
	e := NewThresholdEvaluator(&fakeProposalStore{}, 1, nil)
	token := pickToken(t, "momentum", false)
	out, err := e.Evaluate(context.Background(), agentCtx(1000), []string{token}, false, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Signal != nil {
		t.Fatalf("expected no signal for low score, got %+v", out.Signal)
	}
}

func TestEvaluateBuyWhenNotHeld(t *testing.T) {
	e := NewThresholdEvaluator(&fakeProposalStore{}, 1, nil)
	token := pickToken(t, "momentum", true)

	out, err := e.Evaluate(context.Background(), agentCtx(1000), []string{token}, false, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Signal == nil {
		t.Fatal("expected a signal")
	}
	if out.Signal.Action != model.ActionBuy {
		t.Fatalf("expected buy, got %s", out.Signal.Action)
	}
	if out.Signal.Amount <= 0 || out.Signal.Amount > 100 {
		t.Fatalf("buy amount out of range: %v", out.Signal.Amount)
	}
	if out.ProposalID != "" {
		t.Fatalf("unexpected proposal without autoPropose: %s", out.ProposalID)
	}
}

func TestEvaluateSellWhenHeld(t *testing.T) {
	e := NewThresholdEvaluator(&fakeProposalStore{}, 1, nil)
	token := pickToken(t, "momentum", true)

	ac := agentCtx(1000)
	ac.Snapshot.Holdings = []model.Holding{{Token: token, Balance: 8}}

	out, err := e.Evaluate(context.Background(), ac, []string{token}, false, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Signal == nil || out.Signal.Action != model.ActionSell {
		t.Fatalf("expected sell, got %+v", out.Signal)
	}
	if out.Signal.Amount != 4 {
		t.Fatalf("expected half of holding, got %v", out.Signal.Amount)
	}
}

func TestEvaluateAutoProposePersistsProposal(t *testing.T) {
	store := &fakeProposalStore{}
	e := NewThresholdEvaluator(store, 1, nil)
	token := pickToken(t, "momentum", true)

	out, err := e.Evaluate(context.Background(), agentCtx(1000), []string{token}, true, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.ProposalID == "" {
		t.Fatal("expected proposal id")
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one saved proposal, got %d", len(store.saved))
	}
	saved := store.saved[0]
	if saved.ID != out.ProposalID || saved.Status != model.ProposalStatusPending {
		t.Fatalf("proposal mismatch: %+v", saved)
	}
	if saved.Signal.Token != token {
		t.Fatalf("proposal signal token mismatch: %+v", saved.Signal)
	}
}

func TestEvaluateProposalStoreFailureSurfaces(t *testing.T) {
	store := &fakeProposalStore{err: errors.New("locked")}
	e := NewThresholdEvaluator(store, 1, nil)
	token := pickToken(t, "momentum", true)

	_, err := e.Evaluate(context.Background(), agentCtx(1000), []string{token}, true, nil)
	if err == nil {
		t.Fatal("expected error from failing proposal store")
	}
}

func TestEvaluateDiscoveredTokenGetsBoost(t *testing.T) {
	e := NewThresholdEvaluator(&fakeProposalStore{}, 1, nil)
	token := pickToken(t, "momentum", true)
	other := pickToken(t, "momentum", false)

	metadata := map[string]model.TokenInfo{
		token: {Address: token, CreatedAtBlock: 123},
	}
	base := tokenScore("momentum", token)
	out, err := e.Evaluate(context.Background(), agentCtx(1000), []string{other, token}, false, metadata)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Signal == nil || out.Signal.Token != token {
		t.Fatalf("expected boosted discovered token selected, got %+v", out.Signal)
	}
	if out.Signal.Confidence < base {
		t.Fatalf("expected boosted confidence >= %v, got %v", base, out.Signal.Confidence)
	}
}
