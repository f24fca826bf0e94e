package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ggonzalez94/agent-sched/internal/cache"
	"github.com/ggonzalez94/agent-sched/internal/chain"
	"github.com/ggonzalez94/agent-sched/internal/config"
	"github.com/ggonzalez94/agent-sched/internal/discovery"
	schederr "github.com/ggonzalez94/agent-sched/internal/errors"
	"github.com/ggonzalez94/agent-sched/internal/execution"
	"github.com/ggonzalez94/agent-sched/internal/execution/signer"
	"github.com/ggonzalez94/agent-sched/internal/httpx"
	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/out"
	"github.com/ggonzalez94/agent-sched/internal/portfolio"
	"github.com/ggonzalez94/agent-sched/internal/reconcile"
	"github.com/ggonzalez94/agent-sched/internal/registry"
	"github.com/ggonzalez94/agent-sched/internal/risk"
	"github.com/ggonzalez94/agent-sched/internal/schema"
	"github.com/ggonzalez94/agent-sched/internal/scheduler"
	"github.com/ggonzalez94/agent-sched/internal/store"
	"github.com/ggonzalez94/agent-sched/internal/strategy"
	"github.com/ggonzalez94/agent-sched/internal/universe"
	"github.com/ggonzalez94/agent-sched/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	log         *zap.Logger
	store       *store.Store
	cache       *cache.Store
	reader      *chain.Reader
	root        *cobra.Command
	lastCommand string
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	state.close()
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return schederr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.reader != nil {
		s.reader.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Trading agent evaluation and execution scheduler",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return schederr.Wrap(schederr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())

			logCfg := zap.NewProductionConfig()
			if settings.Verbose {
				logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
			}
			log, err := logCfg.Build()
			if err != nil {
				return schederr.Wrap(schederr.CodeInternal, "initialize logger", err)
			}
			s.log = log
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return schederr.Wrap(schederr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.Interval, "interval", "", "Per-agent evaluation interval (floored at 60s)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "External request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per external request")
	cmd.PersistentFlags().Int64Var(&s.flags.ChainID, "chain-id", 0, "Chain id")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC endpoint override")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable discovery cache reads and writes")
	cmd.PersistentFlags().BoolVar(&s.flags.Verbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(s.newCycleCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newAgentsCommand())
	cmd.AddCommand(s.newProposalsCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print scheduler version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newCycleCommand() *cobra.Command {
	root := &cobra.Command{Use: "cycle", Short: "Evaluation cycle commands"}

	var tokens []string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one evaluation cycle over the active agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := s.buildController(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := controller.RunCycle(cmd.Context(), tokens, s.settings.Interval)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), summary)
		},
	}
	runCmd.Flags().StringSliceVar(&tokens, "tokens", nil, "Candidate token addresses (comma-separated)")
	root.AddCommand(runCmd)

	var loopTokens []string
	loopCmd := &cobra.Command{
		Use:   "loop",
		Short: "Run evaluation cycles continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := s.buildController(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			loop := scheduler.NewLoop(controller, s.settings.LoopDelay, s.log)
			if err := loop.Run(ctx, loopTokens, s.settings.Interval); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	loopCmd.Flags().StringSliceVar(&loopTokens, "tokens", nil, "Candidate token addresses (comma-separated)")
	root.AddCommand(loopCmd)

	return root
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report scheduler configuration and the last cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := s.buildController(cmd.Context())
			if err != nil {
				return err
			}
			status, err := controller.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), status)
		},
	}
}

func (s *runtimeState) newAgentsCommand() *cobra.Command {
	root := &cobra.Command{Use: "agents", Short: "Agent registry commands"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.openStore(); err != nil {
				return err
			}
			agents, err := s.store.ListActiveAgents(cmd.Context())
			if err != nil {
				return schederr.Wrap(schederr.CodeStorage, "list agents", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), agents)
		},
	}
	root.AddCommand(list)

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert agents from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.openStore(); err != nil {
				return err
			}
			buf, err := os.ReadFile(file)
			if err != nil {
				return schederr.Wrap(schederr.CodeUsage, "read agents file", err)
			}
			var agents []model.Agent
			if err := json.Unmarshal(buf, &agents); err != nil {
				return schederr.Wrap(schederr.CodeUsage, "parse agents file", err)
			}
			for _, agent := range agents {
				if err := s.store.UpsertAgent(cmd.Context(), agent); err != nil {
					return schederr.Wrap(schederr.CodeStorage, fmt.Sprintf("upsert agent %s", agent.ID), err)
				}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{"imported": len(agents)})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "Path to a JSON array of agents")
	_ = importCmd.MarkFlagRequired("file")
	root.AddCommand(importCmd)

	return root
}

func (s *runtimeState) newProposalsCommand() *cobra.Command {
	root := &cobra.Command{Use: "proposals", Short: "Trade proposal commands"}

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List trade proposals, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.openStore(); err != nil {
				return err
			}
			proposals, err := s.store.ListProposals(cmd.Context(), status, limit)
			if err != nil {
				return schederr.Wrap(schederr.CodeStorage, "list proposals", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), proposals)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (pending/approved/rejected)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum proposals to return")
	root.AddCommand(list)

	return root
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Describe the command tree as JSON for scripted callers",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Describe(s.root, strings.Join(args, " "))
			if err != nil {
				return schederr.Wrap(schederr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data)
		},
	}
}

func (s *runtimeState) openStore() error {
	if s.store != nil {
		return nil
	}
	st, err := store.Open(s.settings.StorePath, s.settings.StoreLockPath)
	if err != nil {
		return schederr.Wrap(schederr.CodeStorage, "open state store", err)
	}
	s.store = st
	return nil
}

// buildController assembles the full cycle pipeline: store, discovery,
// chain reads, portfolio fetch, reconciliation, strategy, risk, and
// execution.
func (s *runtimeState) buildController(ctx context.Context) (*scheduler.Controller, error) {
	if err := s.openStore(); err != nil {
		return nil, err
	}

	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.ChainID)
	if err != nil {
		return nil, err
	}

	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries)

	var discoveryOpts []discovery.Option
	if s.settings.CacheEnabled {
		cacheStore, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
		if err != nil {
			return nil, schederr.Wrap(schederr.CodeStorage, "open discovery cache", err)
		}
		s.cache = cacheStore
		discoveryOpts = append(discoveryOpts, discovery.WithCache(cacheStore))
	}
	discoverer := discovery.New(httpClient, s.settings.DiscoveryURL, s.settings.DiscoveryAPIKey, s.log, discoveryOpts...)

	reader, err := chain.Dial(ctx, rpcURL)
	if err != nil {
		return nil, schederr.Wrap(schederr.CodeUnavailable, "connect rpc", err)
	}
	s.reader = reader

	indexer := portfolio.NewIndexerClient(httpClient, s.settings.DiscoveryURL, s.settings.DiscoveryAPIKey, s.settings.ChainID)
	chainSource := &chainHoldingsSource{reader: reader, tokens: knownTokenAddresses(s.settings.ChainID)}
	fetcher := portfolio.NewFetcher(reader, indexer, chainSource, s.log)

	executor, err := s.buildExecutor(rpcURL)
	if err != nil {
		return nil, err
	}

	return scheduler.NewController(scheduler.Deps{
		Agents:     s.store,
		Universe:   universe.NewBuilder(discoverer, s.settings.ChainID, s.log),
		Portfolio:  fetcher,
		Reconciler: reconcile.New(s.store, s.log),
		Evaluator:  strategy.NewThresholdEvaluator(s.store, s.settings.ChainID, s.log),
		Guard:      risk.New(),
		Executor:   executor,
		Proposals:  s.store,
		AutoLoop:   s.settings.AutoLoop,
		Log:        s.log,
	}), nil
}

// buildExecutor prefers a real signing executor. Without key material
// the cycle still runs: auto-execute trades surface the signer problem
// as per-agent execution errors instead of failing the whole cycle.
func (s *runtimeState) buildExecutor(rpcURL string) (scheduler.Executor, error) {
	txSigner, err := signer.NewLocalSignerFromEnv(s.settings.KeystorePath)
	if err != nil {
		s.log.Warn("signer unavailable, auto-execution disabled", zap.Error(err))
		return unavailableExecutor{cause: err}, nil
	}
	return execution.NewSwapExecutor(rpcURL, s.settings.ChainID, txSigner, execution.DefaultOptions(), s.log)
}

type unavailableExecutor struct {
	cause error
}

func (e unavailableExecutor) Execute(_ context.Context, _ execution.Request) (execution.Result, error) {
	return execution.Result{}, schederr.Wrap(schederr.CodeSigner, "no signing key configured", e.cause)
}

// chainHoldingsSource adapts direct ERC-20 reads over the registry's
// known tokens into a holdings source.
type chainHoldingsSource struct {
	reader *chain.Reader
	tokens []string
}

func (c *chainHoldingsSource) Holdings(ctx context.Context, address string) ([]model.Holding, error) {
	return c.reader.TokenHoldings(ctx, address, c.tokens)
}

func knownTokenAddresses(chainID int64) []string {
	var addrs []string
	for _, token := range registry.DefaultTokens(chainID) {
		addrs = append(addrs, token.Address)
	}
	for _, token := range registry.VenueTokens(chainID) {
		addrs = append(addrs, token.Address)
	}
	return addrs
}

func (s *runtimeState) emitSuccess(commandPath string, data any) error {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := schederr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := schederr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		switch cErr.Code {
		case schederr.CodeUsage:
			typ = "usage_error"
		case schederr.CodeAuth:
			typ = "auth_error"
		case schederr.CodeRateLimited:
			typ = "rate_limited"
		case schederr.CodeUnavailable:
			typ = "unavailable"
		case schederr.CodeUnsupported:
			typ = "unsupported"
		case schederr.CodeStorage:
			typ = "storage_error"
		case schederr.CodeSigner:
			typ = "signer_error"
		case schederr.CodeExecPlan:
			typ = "execution_plan_error"
		case schederr.CodeExecSim:
			typ = "execution_simulation_error"
		case schederr.CodeExecTimeout:
			typ = "execution_timeout"
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := schederr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return schederr.Wrap(schederr.CodeUsage, "invalid command input", err)
	}
	return schederr.Wrap(schederr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func newRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(buf)
}
