package portfolio

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ggonzalez94/agent-sched/internal/model"
)

// BalanceSource reads a wallet's native balance.
type BalanceSource interface {
	NativeBalance(ctx context.Context, address string) (float64, error)
}

// HoldingsSource lists token positions for a wallet.
type HoldingsSource interface {
	Holdings(ctx context.Context, address string) ([]model.Holding, error)
}

// Fetcher assembles one agent's portfolio snapshot from a native balance
// read and two independent holdings sources. Each read is individually
// fault-tolerant: a failure degrades to zero/empty instead of failing the
// snapshot, and the three reads run concurrently.
type Fetcher struct {
	native    BalanceSource
	primary   HoldingsSource
	secondary HoldingsSource
	log       *zap.Logger
}

func NewFetcher(native BalanceSource, primary, secondary HoldingsSource, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{native: native, primary: primary, secondary: secondary, log: log}
}

// Fetch returns the snapshot for the wallet. An empty wallet yields an
// empty snapshot without touching any source.
func (f *Fetcher) Fetch(ctx context.Context, wallet string) model.PortfolioSnapshot {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return model.PortfolioSnapshot{}
	}

	var (
		native            float64
		primary, secondary []model.Holding
	)

	var group errgroup.Group
	group.Go(func() error {
		if f.native == nil {
			return nil
		}
		value, err := f.native.NativeBalance(ctx, wallet)
		if err != nil {
			f.log.Warn("native balance read failed", zap.String("wallet", wallet), zap.Error(err))
			return nil
		}
		native = value
		return nil
	})
	group.Go(func() error {
		primary = f.readHoldings(ctx, f.primary, wallet, "primary")
		return nil
	})
	group.Go(func() error {
		secondary = f.readHoldings(ctx, f.secondary, wallet, "secondary")
		return nil
	})
	_ = group.Wait()

	return model.PortfolioSnapshot{
		NativeBalance: native,
		Holdings:      mergeHoldings(primary, secondary),
	}
}

func (f *Fetcher) readHoldings(ctx context.Context, source HoldingsSource, wallet, name string) []model.Holding {
	if source == nil {
		return nil
	}
	holdings, err := source.Holdings(ctx, wallet)
	if err != nil {
		f.log.Warn("holdings read failed",
			zap.String("source", name),
			zap.String("wallet", wallet),
			zap.Error(err))
		return nil
	}
	return holdings
}

// mergeHoldings joins the two sources by token address, case-insensitively.
// The primary source wins on conflict; secondary entries are appended only
// when their address is absent from the primary set.
func mergeHoldings(primary, secondary []model.Holding) []model.Holding {
	merged := make([]model.Holding, 0, len(primary)+len(secondary))
	seen := make(map[string]struct{}, len(primary))
	for _, holding := range primary {
		key := strings.ToLower(holding.Token)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, holding)
	}
	for _, holding := range secondary {
		key := strings.ToLower(holding.Token)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, holding)
	}
	return merged
}
