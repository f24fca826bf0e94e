package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ggonzalez94/agent-sched/internal/cache"
	schederr "github.com/ggonzalez94/agent-sched/internal/errors"
	"github.com/ggonzalez94/agent-sched/internal/httpx"
	"github.com/ggonzalez94/agent-sched/internal/model"
)

const cacheTTL = 2 * time.Minute

// Client fetches recently listed token candidates from a discovery endpoint.
// It is best-effort by contract: callers treat any error as an empty result.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	cache   *cache.Store
	log     *zap.Logger
}

type Option func(*Client)

// WithCache enables TTL caching of discovery responses.
func WithCache(store *cache.Store) Option {
	return func(c *Client) { c.cache = store }
}

func New(httpClient *httpx.Client, baseURL, apiKey string, log *zap.Logger, opts ...Option) *Client {
	client := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		log:     log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

type discoveryResponse struct {
	Tokens []struct {
		Address        string `json:"address"`
		CreatedAtBlock uint64 `json:"created_at_block"`
	} `json:"tokens"`
}

// Discover returns candidate tokens for the chain, seeded with any tokens the
// caller already cares about. A configured cache absorbs endpoint flaps.
func (c *Client) Discover(ctx context.Context, chainID int64, seed []string) ([]model.TokenInfo, error) {
	if c == nil || c.baseURL == "" {
		return nil, schederr.New(schederr.CodeUnsupported, "token discovery is not configured")
	}

	key := cacheKey(chainID, seed)
	if c.cache != nil {
		if res, err := c.cache.Get(key); err == nil && res.Hit {
			var cached []model.TokenInfo
			if err := json.Unmarshal(res.Value, &cached); err == nil {
				return cached, nil
			}
		}
	}

	vals := url.Values{}
	vals.Set("chain_id", strconv.FormatInt(chainID, 10))
	if len(seed) > 0 {
		vals.Set("seed", strings.Join(seed, ","))
	}
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp discoveryResponse
	if _, err := c.http.GetJSON(ctx, c.baseURL+"/v1/tokens/new?"+vals.Encode(), headers, &resp); err != nil {
		return nil, err
	}

	tokens := make([]model.TokenInfo, 0, len(resp.Tokens))
	for _, token := range resp.Tokens {
		address := strings.TrimSpace(token.Address)
		if address == "" {
			continue
		}
		tokens = append(tokens, model.TokenInfo{Address: address, CreatedAtBlock: token.CreatedAtBlock})
	}

	if c.cache != nil && len(tokens) > 0 {
		if payload, err := json.Marshal(tokens); err == nil {
			if err := c.cache.Set(key, payload, cacheTTL); err != nil && c.log != nil {
				c.log.Warn("discovery cache write failed", zap.Error(err))
			}
		}
	}
	return tokens, nil
}

func cacheKey(chainID int64, seed []string) string {
	return fmt.Sprintf("discovery|%d|%s", chainID, strings.ToLower(strings.Join(seed, ",")))
}
