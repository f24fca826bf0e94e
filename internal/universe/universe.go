package universe

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ggonzalez94/agent-sched/internal/config"
	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/registry"
)

// Discoverer is the best-effort external token discovery source.
type Discoverer interface {
	Discover(ctx context.Context, chainID int64, seed []string) ([]model.TokenInfo, error)
}

// Universe is the bounded candidate token set for one cycle. Metadata is
// keyed by lowercased address and covers only discovered tokens.
type Universe struct {
	Tokens          []string
	DiscoveredCount int
	Metadata        map[string]model.TokenInfo
	Interval        time.Duration
}

// Builder assembles the per-cycle token universe: discovery output
// first, caller tokens or chain defaults as fallback, a small venue
// diversity sample on top, everything address-deduplicated and capped.
type Builder struct {
	discovery Discoverer
	chainID   int64
	log       *zap.Logger
}

func NewBuilder(discovery Discoverer, chainID int64, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{discovery: discovery, chainID: chainID, log: log}
}

// Build never fails: discovery errors degrade to an empty discovery
// result and the fallback chain takes over.
func (b *Builder) Build(ctx context.Context, callerTokens []string, interval time.Duration) Universe {
	u := Universe{
		Metadata: make(map[string]model.TokenInfo),
		Interval: config.ClampInterval(interval),
	}

	var discovered []model.TokenInfo
	if b.discovery != nil {
		var err error
		discovered, err = b.discovery.Discover(ctx, b.chainID, callerTokens)
		if err != nil {
			b.log.Warn("token discovery failed, using fallback tokens", zap.Error(err))
			discovered = nil
		}
	}

	seen := make(map[string]bool)
	add := func(token string) {
		token = strings.TrimSpace(token)
		if token == "" {
			return
		}
		key := strings.ToLower(token)
		if seen[key] {
			return
		}
		seen[key] = true
		u.Tokens = append(u.Tokens, token)
	}

	for _, info := range discovered {
		before := len(u.Tokens)
		add(info.Address)
		if len(u.Tokens) > before {
			u.DiscoveredCount++
			u.Metadata[strings.ToLower(info.Address)] = info
		}
	}

	if len(u.Tokens) == 0 {
		if len(callerTokens) > 0 {
			for _, token := range callerTokens {
				add(token)
			}
		} else {
			defaults := registry.DefaultTokens(b.chainID)
			if len(defaults) > config.DefaultTokenFallback {
				defaults = defaults[:config.DefaultTokenFallback]
			}
			for _, token := range defaults {
				add(token.Address)
			}
		}
	}

	sampled := 0
	for _, token := range registry.VenueTokens(b.chainID) {
		if sampled >= config.DiversitySampleSize {
			break
		}
		before := len(u.Tokens)
		add(token.Address)
		if len(u.Tokens) > before {
			sampled++
		}
	}

	if len(u.Tokens) > config.MaxUniverseTokens {
		u.Tokens = u.Tokens[:config.MaxUniverseTokens]
	}
	return u
}
