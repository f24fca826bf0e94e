package registry

// ABI fragments used by chain reads and swap execution.
const (
	ERC20MinimalABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	UniswapV3RouterABI = `[
		{"name":"exactInputSingle","type":"function","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]}
	]`
)

// Canonical Uniswap V3-compatible swap routers by chain ID.
var swapRouterByChainID = map[int64]string{
	1:     "0xE592427A0AEce92De3Edee1F18E0157C05861564",
	8453:  "0x2626664c2603336E57B271c5C0b26F421741e481",
	42161: "0xE592427A0AEce92De3Edee1F18E0157C05861564",
}

func SwapRouter(chainID int64) (string, bool) {
	value, ok := swapRouterByChainID[chainID]
	return value, ok
}
