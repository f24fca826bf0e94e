package execution

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	schederr "github.com/ggonzalez94/agent-sched/internal/errors"
	"github.com/ggonzalez94/agent-sched/internal/execution/signer"
	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/registry"
)

const swapFeeTier = 3000

// Request is one trade handed down by the decision router.
type Request struct {
	AgentID     string
	Action      model.TradeAction
	Token       string
	Amount      float64
	SlippageBps int64
}

// Result reports a completed executor call. Success=false with a
// FailureReason is an on-chain rejection the trade logic caused
// (revert, failed receipt); transport and signing problems come back
// as errors instead.
type Result struct {
	Success       bool
	FailureReason string
	TxHash        string
}

type Options struct {
	Simulate      bool
	PollInterval  time.Duration
	GasMultiplier float64
}

func DefaultOptions() Options {
	return Options{
		Simulate:      true,
		PollInterval:  2 * time.Second,
		GasMultiplier: 1.2,
	}
}

// SwapExecutor submits swaps through the chain's canonical V3-style
// router: approve tokenIn, simulate the swap to derive the minimum
// output under the agent's slippage, then send and wait for receipts.
type SwapExecutor struct {
	rpcURL    string
	chainID   int64
	signer    signer.Signer
	opts      Options
	log       *zap.Logger
	erc20ABI  abi.ABI
	routerABI abi.ABI
}

func NewSwapExecutor(rpcURL string, chainID int64, txSigner signer.Signer, opts Options, log *zap.Logger) (*SwapExecutor, error) {
	if txSigner == nil {
		return nil, schederr.New(schederr.CodeSigner, "missing signer")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	if log == nil {
		log = zap.NewNop()
	}
	erc20ABI, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		return nil, schederr.Wrap(schederr.CodeInternal, "parse erc20 abi", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(registry.UniswapV3RouterABI))
	if err != nil {
		return nil, schederr.Wrap(schederr.CodeInternal, "parse router abi", err)
	}
	return &SwapExecutor{
		rpcURL:    rpcURL,
		chainID:   chainID,
		signer:    txSigner,
		opts:      opts,
		log:       log,
		erc20ABI:  erc20ABI,
		routerABI: routerABI,
	}, nil
}

func (e *SwapExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	tokenIn, tokenOut, err := e.swapPair(req)
	if err != nil {
		return Result{}, err
	}
	routerAddr, ok := registry.SwapRouter(e.chainID)
	if !ok {
		return Result{}, schederr.New(schederr.CodeUnsupported, fmt.Sprintf("no swap router for chain %d", e.chainID))
	}
	router := common.HexToAddress(routerAddr)
	amountIn := toWei(req.Amount, 18)
	if amountIn.Sign() <= 0 {
		return Result{}, schederr.New(schederr.CodeUsage, "trade amount must be positive")
	}

	client, err := ethclient.DialContext(ctx, e.rpcURL)
	if err != nil {
		return Result{}, schederr.Wrap(schederr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	approveData, err := e.erc20ABI.Pack("approve", router, amountIn)
	if err != nil {
		return Result{}, schederr.Wrap(schederr.CodeExecPlan, "encode approve", err)
	}
	if _, res, err := e.submit(ctx, client, tokenIn, approveData); err != nil {
		return Result{}, err
	} else if !res.Success {
		return res, nil
	}

	// First pass with zero minimum output, only to learn the quoted
	// output from simulation. The broadcast calldata carries the
	// slippage-adjusted minimum.
	quoteData, err := e.packSwap(tokenIn, tokenOut, amountIn, big.NewInt(0))
	if err != nil {
		return Result{}, err
	}
	minOut := big.NewInt(0)
	if e.opts.Simulate {
		out, err := client.CallContract(ctx, ethereum.CallMsg{
			From: e.signer.Address(),
			To:   &router,
			Data: quoteData,
		}, nil)
		if err != nil {
			return Result{Success: false, FailureReason: fmt.Sprintf("swap simulation reverted: %v", err)}, nil
		}
		quoted := new(big.Int)
		if results, err := e.routerABI.Unpack("exactInputSingle", out); err == nil && len(results) == 1 {
			if v, ok := results[0].(*big.Int); ok {
				quoted = v
			}
		}
		minOut = applySlippage(quoted, req.SlippageBps)
	}

	swapData, err := e.packSwap(tokenIn, tokenOut, amountIn, minOut)
	if err != nil {
		return Result{}, err
	}
	txHash, res, err := e.submit(ctx, client, router, swapData)
	if err != nil {
		return Result{}, err
	}
	if !res.Success {
		return res, nil
	}

	e.log.Info("swap executed",
		zap.String("agent_id", req.AgentID),
		zap.String("action", string(req.Action)),
		zap.String("token", req.Token),
		zap.Float64("amount", req.Amount),
		zap.String("tx_hash", txHash))
	return Result{Success: true, TxHash: txHash}, nil
}

func (e *SwapExecutor) swapPair(req Request) (common.Address, common.Address, error) {
	wrapped, ok := registry.WrappedNative(e.chainID)
	if !ok {
		return common.Address{}, common.Address{}, schederr.New(schederr.CodeUnsupported, fmt.Sprintf("no wrapped native token for chain %d", e.chainID))
	}
	if !common.IsHexAddress(req.Token) {
		return common.Address{}, common.Address{}, schederr.New(schederr.CodeUsage, fmt.Sprintf("invalid token address %q", req.Token))
	}
	token := common.HexToAddress(req.Token)
	native := common.HexToAddress(wrapped.Address)
	switch req.Action {
	case model.ActionBuy:
		return native, token, nil
	case model.ActionSell:
		return token, native, nil
	default:
		return common.Address{}, common.Address{}, schederr.New(schederr.CodeUsage, fmt.Sprintf("unsupported trade action %q", req.Action))
	}
}

func (e *SwapExecutor) packSwap(tokenIn, tokenOut common.Address, amountIn, minOut *big.Int) ([]byte, error) {
	data, err := e.routerABI.Pack("exactInputSingle", struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(swapFeeTier),
		Recipient:         e.signer.Address(),
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, schederr.Wrap(schederr.CodeExecPlan, "encode swap", err)
	}
	return data, nil
}

// submit runs one simulate/estimate/sign/send/wait round trip for a
// single transaction against the target contract.
func (e *SwapExecutor) submit(ctx context.Context, client *ethclient.Client, target common.Address, data []byte) (string, Result, error) {
	from := e.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &target, Data: data}

	if e.opts.Simulate {
		if _, err := client.CallContract(ctx, msg, nil); err != nil {
			return "", Result{Success: false, FailureReason: fmt.Sprintf("simulation reverted: %v", err)}, nil
		}
	}

	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return "", Result{Success: false, FailureReason: fmt.Sprintf("gas estimation failed: %v", err)}, nil
	}
	gasLimit = uint64(float64(gasLimit) * e.opts.GasMultiplier)

	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", Result{}, schederr.Wrap(schederr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", Result{}, schederr.Wrap(schederr.CodeUnavailable, "fetch nonce", err)
	}

	chainID := new(big.Int).SetInt64(e.chainID)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Data:      data,
	})
	signed, err := e.signer.SignTx(chainID, tx)
	if err != nil {
		return "", Result{}, schederr.Wrap(schederr.CodeSigner, "sign transaction", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", Result{}, schederr.Wrap(schederr.CodeUnavailable, "broadcast transaction", err)
	}

	hash := signed.Hash()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return hash.Hex(), Result{Success: true, TxHash: hash.Hex()}, nil
			}
			return hash.Hex(), Result{Success: false, FailureReason: "transaction reverted on-chain", TxHash: hash.Hex()}, nil
		}
		// Transient polling failures are retried until the caller's
		// deadline expires.
		select {
		case <-ctx.Done():
			return hash.Hex(), Result{}, schederr.Wrap(schederr.CodeExecTimeout, "timed out waiting for receipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

func applySlippage(quoted *big.Int, slippageBps int64) *big.Int {
	if quoted == nil || quoted.Sign() <= 0 {
		return big.NewInt(0)
	}
	if slippageBps < 0 {
		slippageBps = 0
	}
	if slippageBps > 10_000 {
		slippageBps = 10_000
	}
	out := new(big.Int).Mul(quoted, big.NewInt(10_000-slippageBps))
	return out.Div(out, big.NewInt(10_000))
}

func toWei(amount float64, decimals int) *big.Int {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return big.NewInt(0)
	}
	f := new(big.Float).SetFloat64(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Mul(f, scale)
	out, _ := f.Int(nil)
	return out
}
