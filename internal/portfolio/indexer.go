package portfolio

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	schederr "github.com/ggonzalez94/agent-sched/internal/errors"
	"github.com/ggonzalez94/agent-sched/internal/httpx"
	"github.com/ggonzalez94/agent-sched/internal/model"
)

// IndexerClient reads wallet holdings from an external token-balance
// indexer. It is the primary holdings source; direct chain reads serve
// as the secondary.
type IndexerClient struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	chainID int64
}

func NewIndexerClient(client *httpx.Client, baseURL, apiKey string, chainID int64) *IndexerClient {
	return &IndexerClient{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		chainID: chainID,
	}
}

type indexerHolding struct {
	Address     string  `json:"address"`
	Symbol      string  `json:"symbol"`
	Balance     float64 `json:"balance"`
	NativeValue float64 `json:"native_value"`
}

type indexerResponse struct {
	Holdings []indexerHolding `json:"holdings"`
}

func (c *IndexerClient) Holdings(ctx context.Context, address string) ([]model.Holding, error) {
	if c.baseURL == "" {
		return nil, schederr.New(schederr.CodeUnsupported, "holdings indexer is not configured")
	}
	endpoint := fmt.Sprintf("%s/v1/wallets/%s/tokens?chain_id=%d", c.baseURL, url.PathEscape(address), c.chainID)
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp indexerResponse
	if _, err := c.http.GetJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, err
	}

	holdings := make([]model.Holding, 0, len(resp.Holdings))
	for _, h := range resp.Holdings {
		if strings.TrimSpace(h.Address) == "" || h.Balance <= 0 {
			continue
		}
		holdings = append(holdings, model.Holding{
			Token:   h.Address,
			Symbol:  h.Symbol,
			Balance: h.Balance,
			Value:   h.NativeValue,
		})
	}
	return holdings, nil
}
