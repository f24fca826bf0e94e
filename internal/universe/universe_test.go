package universe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/agent-sched/internal/config"
	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/registry"
)

type fakeDiscovery struct {
	tokens []model.TokenInfo
	err    error
	calls  int
}

func (f *fakeDiscovery) Discover(_ context.Context, _ int64, _ []string) ([]model.TokenInfo, error) {
	f.calls++
	return f.tokens, f.err
}

func addr(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func TestBuildDiscoveryFirstOrdering(t *testing.T) {
	discovery := &fakeDiscovery{tokens: []model.TokenInfo{
		{Address: addr(1), CreatedAtBlock: 100},
		{Address: addr(2), CreatedAtBlock: 101},
	}}
	b := NewBuilder(discovery, 1, nil)

	u := b.Build(context.Background(), nil, 5*time.Minute)

	if u.DiscoveredCount != 2 {
		t.Fatalf("expected 2 discovered, got %d", u.DiscoveredCount)
	}
	if u.Tokens[0] != addr(1) || u.Tokens[1] != addr(2) {
		t.Fatalf("discovered tokens must lead the universe: %v", u.Tokens)
	}
	if len(u.Tokens) != 2+config.DiversitySampleSize {
		t.Fatalf("expected discovery plus venue sample, got %v", u.Tokens)
	}
	if u.Metadata[addr(1)].CreatedAtBlock != 100 {
		t.Fatalf("metadata missing for discovered token: %+v", u.Metadata)
	}
}

func TestBuildCapsAtMaxTokens(t *testing.T) {
	var tokens []model.TokenInfo
	for i := 1; i <= 15; i++ {
		tokens = append(tokens, model.TokenInfo{Address: addr(i)})
	}
	b := NewBuilder(&fakeDiscovery{tokens: tokens}, 1, nil)

	u := b.Build(context.Background(), nil, 0)

	if len(u.Tokens) != config.MaxUniverseTokens {
		t.Fatalf("expected cap %d, got %d", config.MaxUniverseTokens, len(u.Tokens))
	}
	for i, token := range u.Tokens {
		if token != addr(i+1) {
			t.Fatalf("truncation must preserve discovery order, got %v", u.Tokens)
		}
	}
}

func TestBuildDedupesCaseInsensitive(t *testing.T) {
	duplicate := strings.ToUpper(addr(1))
	b := NewBuilder(&fakeDiscovery{tokens: []model.TokenInfo{
		{Address: addr(1)},
		{Address: duplicate},
	}}, 1, nil)

	u := b.Build(context.Background(), nil, 0)

	if u.DiscoveredCount != 1 {
		t.Fatalf("case-variant duplicate must not count twice, got %d", u.DiscoveredCount)
	}
	count := 0
	for _, token := range u.Tokens {
		if strings.EqualFold(token, addr(1)) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected single entry for duplicated address, got %v", u.Tokens)
	}
}

func TestBuildFailedDiscoveryFallsBackToCallerTokens(t *testing.T) {
	b := NewBuilder(&fakeDiscovery{err: errors.New("upstream down")}, 1, nil)

	caller := []string{addr(7), addr(8)}
	u := b.Build(context.Background(), caller, 0)

	if u.DiscoveredCount != 0 {
		t.Fatalf("failed discovery must report zero discovered, got %d", u.DiscoveredCount)
	}
	if u.Tokens[0] != addr(7) || u.Tokens[1] != addr(8) {
		t.Fatalf("expected caller tokens first, got %v", u.Tokens)
	}
}

func TestBuildEmptyEverythingUsesBoundedDefaults(t *testing.T) {
	b := NewBuilder(&fakeDiscovery{}, 1, nil)

	u := b.Build(context.Background(), nil, 0)

	defaults := registry.DefaultTokens(1)
	if len(defaults) <= config.DefaultTokenFallback {
		t.Fatalf("test requires more than %d default tokens", config.DefaultTokenFallback)
	}
	for i := 0; i < config.DefaultTokenFallback; i++ {
		if !strings.EqualFold(u.Tokens[i], defaults[i].Address) {
			t.Fatalf("expected default token %s at %d, got %v", defaults[i].Address, i, u.Tokens)
		}
	}
}

func TestBuildVenueSampleSkipsPresentAddresses(t *testing.T) {
	venue := registry.VenueTokens(1)
	if len(venue) < 2 {
		t.Fatal("test requires at least two venue tokens")
	}
	// Discover the first venue token so the sample has to skip it.
	b := NewBuilder(&fakeDiscovery{tokens: []model.TokenInfo{
		{Address: strings.ToLower(venue[0].Address)},
	}}, 1, nil)

	u := b.Build(context.Background(), nil, 0)

	count := 0
	for _, token := range u.Tokens {
		if strings.EqualFold(token, venue[0].Address) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("venue sample must skip already-present address, got %v", u.Tokens)
	}
}

func TestBuildClampsInterval(t *testing.T) {
	b := NewBuilder(nil, 1, nil)

	u := b.Build(context.Background(), nil, time.Second)
	if u.Interval != config.MinInterval {
		t.Fatalf("expected interval floor %v, got %v", config.MinInterval, u.Interval)
	}

	u = b.Build(context.Background(), nil, 5*time.Minute)
	if u.Interval != 5*time.Minute {
		t.Fatalf("expected interval preserved, got %v", u.Interval)
	}
}
