package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixed scheduler constants. The interval is tunable per call (floored at
// MinInterval); these are not.
const (
	// MinInterval is the cooldown floor between evaluations of one agent.
	MinInterval = 60 * time.Second
	// DriftThreshold is the native-unit gap between persisted and observed
	// capital above which reconciliation rewrites the ledger.
	DriftThreshold = 0.1
	// ExecTimeout is the hard ceiling on one trade executor call.
	ExecTimeout = 90 * time.Second
	// MaxUniverseTokens caps the token universe per cycle.
	MaxUniverseTokens = 10
	// DiversitySampleSize is how many venue-registry tokens are mixed in.
	DiversitySampleSize = 3
	// DefaultTokenFallback bounds the default-list slice used when
	// discovery and caller input are both empty.
	DefaultTokenFallback = 5
	// DefaultSlippageBps applies when an agent has no slippage configured.
	DefaultSlippageBps int64 = 100
)

type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	Interval   string
	Timeout    string
	Retries    int
	RPCURL     string
	ChainID    int64
	NoCache    bool
	Verbose    bool
}

type Settings struct {
	OutputMode      string
	Interval        time.Duration
	LoopDelay       time.Duration
	AutoLoop        bool
	Timeout         time.Duration
	Retries         int
	ChainID         int64
	RPCURL          string
	StorePath       string
	StoreLockPath   string
	CacheEnabled    bool
	CachePath       string
	CacheLockPath   string
	DiscoveryURL    string
	DiscoveryAPIKey string
	KeystorePath    string
	Verbose         bool
}

type fileConfig struct {
	Output    string `yaml:"output"`
	Interval  string `yaml:"interval"`
	LoopDelay string `yaml:"loop_delay"`
	AutoLoop  *bool  `yaml:"auto_loop"`
	Timeout   string `yaml:"timeout"`
	Retries   *int   `yaml:"retries"`
	Chain     struct {
		ID     *int64 `yaml:"id"`
		RPCURL string `yaml:"rpc_url"`
	} `yaml:"chain"`
	Store struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"store"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Discovery struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"discovery"`
	Keystore string `yaml:"keystore"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	settings.Interval = ClampInterval(settings.Interval)
	if settings.LoopDelay <= 0 {
		settings.LoopDelay = settings.Interval
	}

	return settings, nil
}

// ClampInterval enforces the cooldown floor. Zero or negative means
// "use the floor".
func ClampInterval(interval time.Duration) time.Duration {
	if interval < MinInterval {
		return MinInterval
	}
	return interval
}

func defaultSettings() (Settings, error) {
	storePath, storeLock, cachePath, cacheLock, err := defaultDataPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:    "json",
		Interval:      5 * time.Minute,
		Timeout:       10 * time.Second,
		Retries:       2,
		ChainID:       1,
		StorePath:     storePath,
		StoreLockPath: storeLock,
		CacheEnabled:  true,
		CachePath:     cachePath,
		CacheLockPath: cacheLock,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "agentsched", "config.yaml"), nil
}

func defaultDataPaths() (string, string, string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "agentsched")
	return filepath.Join(dir, "state.db"), filepath.Join(dir, "state.lock"),
		filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Interval != "" {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return fmt.Errorf("config interval: %w", err)
		}
		settings.Interval = d
	}
	if cfg.LoopDelay != "" {
		d, err := time.ParseDuration(cfg.LoopDelay)
		if err != nil {
			return fmt.Errorf("config loop_delay: %w", err)
		}
		settings.LoopDelay = d
	}
	if cfg.AutoLoop != nil {
		settings.AutoLoop = *cfg.AutoLoop
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Chain.ID != nil {
		settings.ChainID = *cfg.Chain.ID
	}
	if cfg.Chain.RPCURL != "" {
		settings.RPCURL = cfg.Chain.RPCURL
	}
	if cfg.Store.Path != "" {
		settings.StorePath = cfg.Store.Path
	}
	if cfg.Store.LockPath != "" {
		settings.StoreLockPath = cfg.Store.LockPath
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Discovery.URL != "" {
		settings.DiscoveryURL = cfg.Discovery.URL
	}
	if cfg.Discovery.APIKey != "" {
		settings.DiscoveryAPIKey = cfg.Discovery.APIKey
	}
	if cfg.Discovery.APIKeyEnv != "" {
		settings.DiscoveryAPIKey = os.Getenv(cfg.Discovery.APIKeyEnv)
	}
	if cfg.Keystore != "" {
		settings.KeystorePath = cfg.Keystore
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("SCHED_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("SCHED_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Interval = d
		}
	}
	if v := os.Getenv("SCHED_LOOP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.LoopDelay = d
		}
	}
	if v := os.Getenv("SCHED_AUTO_LOOP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.AutoLoop = b
		}
	}
	if v := os.Getenv("SCHED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("SCHED_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("SCHED_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	if v := os.Getenv("SCHED_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("SCHED_STORE_PATH"); v != "" {
		settings.StorePath = v
	}
	if v := os.Getenv("SCHED_STORE_LOCK_PATH"); v != "" {
		settings.StoreLockPath = v
	}
	if v := os.Getenv("SCHED_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("SCHED_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("SCHED_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("SCHED_DISCOVERY_URL"); v != "" {
		settings.DiscoveryURL = v
	}
	if v := os.Getenv("SCHED_DISCOVERY_API_KEY"); v != "" {
		settings.DiscoveryAPIKey = v
	}
	if v := os.Getenv("SCHED_KEYSTORE"); v != "" {
		settings.KeystorePath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Interval != "" {
		d, err := time.ParseDuration(flags.Interval)
		if err != nil {
			return fmt.Errorf("parse --interval: %w", err)
		}
		settings.Interval = d
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.ChainID > 0 {
		settings.ChainID = flags.ChainID
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = strings.TrimSpace(flags.RPCURL)
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.Verbose {
		settings.Verbose = true
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}
