package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/ggonzalez94/agent-sched/internal/model"
)

type fakeCapitalStore struct {
	capital   float64
	readErr   error
	writeErr  error
	writes    []float64
	readCalls int
}

func (f *fakeCapitalStore) ReadCapital(_ context.Context, _ string) (float64, error) {
	f.readCalls++
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.capital, nil
}

func (f *fakeCapitalStore) WriteCapital(_ context.Context, _ string, value float64) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, value)
	f.capital = value
	return nil
}

func TestReconcileWithinThresholdKeepsPersisted(t *testing.T) {
	store := &fakeCapitalStore{capital: 1000}
	r := New(store, nil)

	snapshot := model.PortfolioSnapshot{NativeBalance: 1000.05}
	capital := r.Reconcile(context.Background(), model.Agent{ID: "a1"}, snapshot)

	if capital != 1000 {
		t.Fatalf("expected persisted 1000, got %v", capital)
	}
	if len(store.writes) != 0 {
		t.Fatalf("expected no writes, got %v", store.writes)
	}
}

func TestReconcileBeyondThresholdRewrites(t *testing.T) {
	store := &fakeCapitalStore{capital: 1000}
	r := New(store, nil)

	snapshot := model.PortfolioSnapshot{
		NativeBalance: 900,
		Holdings:      []model.Holding{{Token: "0xabc", Balance: 10, Value: 50}},
	}
	capital := r.Reconcile(context.Background(), model.Agent{ID: "a1"}, snapshot)

	if capital != 950 {
		t.Fatalf("expected observed 950, got %v", capital)
	}
	if len(store.writes) != 1 || store.writes[0] != 950 {
		t.Fatalf("expected single write of 950, got %v", store.writes)
	}
}

func TestReconcileExactThresholdDoesNotRewrite(t *testing.T) {
	store := &fakeCapitalStore{capital: 1000}
	r := New(store, nil)

	snapshot := model.PortfolioSnapshot{NativeBalance: 1000.1}
	capital := r.Reconcile(context.Background(), model.Agent{ID: "a1"}, snapshot)

	if capital != 1000 {
		t.Fatalf("expected persisted value at exact threshold, got %v", capital)
	}
	if len(store.writes) != 0 {
		t.Fatalf("expected no writes at exact threshold, got %v", store.writes)
	}
}

func TestReconcileWriteFailureIsNonFatal(t *testing.T) {
	store := &fakeCapitalStore{capital: 1000, writeErr: errors.New("disk full")}
	r := New(store, nil)

	snapshot := model.PortfolioSnapshot{NativeBalance: 500}
	capital := r.Reconcile(context.Background(), model.Agent{ID: "a1"}, snapshot)

	if capital != 1000 {
		t.Fatalf("expected correction abandoned on write failure, got %v", capital)
	}
}

func TestReconcileReadFailureFallsBackToConfigured(t *testing.T) {
	store := &fakeCapitalStore{readErr: errors.New("no row")}
	r := New(store, nil)

	agent := model.Agent{ID: "a1", Capital: 800}
	snapshot := model.PortfolioSnapshot{NativeBalance: 800.05}
	capital := r.Reconcile(context.Background(), agent, snapshot)

	if capital != 800 {
		t.Fatalf("expected configured capital fallback, got %v", capital)
	}
}
