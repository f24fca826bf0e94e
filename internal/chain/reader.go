package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	schederr "github.com/ggonzalez94/agent-sched/internal/errors"
	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/registry"
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

// Reader answers balance queries for one EVM chain. All amounts are
// returned in native (ether) units as float64, matching the capital ledger.
type Reader struct {
	eth *ethclient.Client
}

func Dial(ctx context.Context, rpcURL string) (*Reader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, schederr.Wrap(schederr.CodeUnavailable, "connect rpc", err)
	}
	return &Reader{eth: client}, nil
}

func (r *Reader) Close() {
	if r != nil && r.eth != nil {
		r.eth.Close()
	}
}

// NativeBalance reads the account's native coin balance.
func (r *Reader) NativeBalance(ctx context.Context, address string) (float64, error) {
	if !common.IsHexAddress(address) {
		return 0, schederr.New(schederr.CodeUsage, fmt.Sprintf("invalid wallet address %q", address))
	}
	wei, err := r.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, schederr.Wrap(schederr.CodeUnavailable, "read native balance", err)
	}
	return weiToFloat(wei, 18), nil
}

// TokenHoldings reads ERC-20 balances for the owner across the given token
// addresses. Tokens with a zero balance or an unreadable contract are
// omitted; a per-token read failure never fails the whole call.
func (r *Reader) TokenHoldings(ctx context.Context, owner string, tokens []string) ([]model.Holding, error) {
	if !common.IsHexAddress(owner) {
		return nil, schederr.New(schederr.CodeUsage, fmt.Sprintf("invalid wallet address %q", owner))
	}
	ownerAddr := common.HexToAddress(owner)

	holdings := make([]model.Holding, 0, len(tokens))
	for _, token := range tokens {
		if !common.IsHexAddress(token) {
			continue
		}
		balance, decimals, symbol, err := r.readToken(ctx, common.HexToAddress(token), ownerAddr)
		if err != nil {
			continue
		}
		if balance.Sign() == 0 {
			continue
		}
		amount := weiToFloat(balance, decimals)
		holdings = append(holdings, model.Holding{
			Token:   token,
			Symbol:  symbol,
			Balance: amount,
			Value:   nativeEquivalent(symbol, amount),
		})
	}
	return holdings, nil
}

func (r *Reader) readToken(ctx context.Context, token, owner common.Address) (*big.Int, int, string, error) {
	balanceData, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, 0, "", err
	}
	raw, err := r.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: balanceData}, nil)
	if err != nil {
		return nil, 0, "", err
	}
	var balance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&balance, "balanceOf", raw); err != nil {
		return nil, 0, "", err
	}

	decimals := 18
	if data, err := erc20ABI.Pack("decimals"); err == nil {
		if raw, err := r.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil); err == nil {
			var d uint8
			if err := erc20ABI.UnpackIntoInterface(&d, "decimals", raw); err == nil {
				decimals = int(d)
			}
		}
	}

	symbol := ""
	if data, err := erc20ABI.Pack("symbol"); err == nil {
		if raw, err := r.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil); err == nil {
			var s string
			if err := erc20ABI.UnpackIntoInterface(&s, "symbol", raw); err == nil {
				symbol = s
			}
		}
	}

	return balance, decimals, symbol, nil
}

// nativeEquivalent prices a holding in native units where that is knowable
// without an oracle: wrapped native trades 1:1, everything else reports zero.
func nativeEquivalent(symbol string, amount float64) float64 {
	if strings.EqualFold(symbol, "WETH") {
		return amount
	}
	return 0
}

func weiToFloat(value *big.Int, decimals int) float64 {
	if value == nil || value.Sign() == 0 {
		return 0
	}
	f := new(big.Float).SetInt(value)
	scale := new(big.Float).SetFloat64(math.Pow10(decimals))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
