package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"maplemarket/core/genesis"
	"maplemarket/observability/otel"
	"maplemarket/storage"
)

const (
	// DefaultChainID is written into freshly created configuration files.
	DefaultChainID uint64 = 5801

	defaultRPCAddress  = "127.0.0.1:8080"
	defaultDataDir     = "./maplemarket-data"
	defaultTxPerSecond = 5
	defaultTxBurst     = 10

	// devDeployer owns the contracts created by the default genesis.
	devDeployer = "0x000000000000000000000000000000000000d0d0"
)

type Config struct {
	Environment string `toml:"Environment"`
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	ChainID     uint64 `toml:"ChainID"`
	// GenesisFile, when set, takes precedence over the inline [genesis]
	// table. Relative paths resolve against the config file directory.
	GenesisFile string `toml:"GenesisFile"`

	Storage   Storage              `toml:"storage"`
	Market    Market               `toml:"market"`
	RPC       RPC                  `toml:"rpc"`
	Telemetry Telemetry            `toml:"telemetry"`
	Genesis   *genesis.GenesisSpec `toml:"genesis,omitempty"`

	path string
}

// Storage selects the state database backend.
type Storage struct {
	Backend string `toml:"Backend"`
}

// Market holds runtime switches for the marketplace module.
type Market struct {
	Paused bool `toml:"Paused"`
}

// RPC tunes the HTTP API.
type RPC struct {
	ReadHeaderTimeoutSeconds int      `toml:"ReadHeaderTimeoutSeconds"`
	TxPerSecond              float64  `toml:"TxPerSecond"`
	TxBurst                  int      `toml:"TxBurst"`
	TrustedProxies           []string `toml:"TrustedProxies"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		cfg.applyEnv()
		return cfg, cfg.Validate()
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	cfg.path = path
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = storage.BackendLevelDB
	}
	if c.RPC.ReadHeaderTimeoutSeconds <= 0 {
		c.RPC.ReadHeaderTimeoutSeconds = 5
	}
	if c.RPC.TxPerSecond <= 0 {
		c.RPC.TxPerSecond = defaultTxPerSecond
	}
	if c.RPC.TxBurst <= 0 {
		c.RPC.TxBurst = defaultTxBurst
	}
	if c.RPC.TrustedProxies == nil {
		c.RPC.TrustedProxies = []string{}
	}
}

// applyEnv lets deployments override telemetry settings without editing the
// file, using the standard OTEL variable names.
func (c *Config) applyEnv() {
	if env := strings.TrimSpace(os.Getenv("MAPLE_ENV")); env != "" {
		c.Environment = env
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		c.Telemetry.Endpoint = endpoint
		c.Telemetry.Enabled = true
	}
	if headers := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); headers != "" {
		c.Telemetry.Headers = headers
	}
	if insecure := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); insecure != "" {
		c.Telemetry.Insecure = strings.EqualFold(insecure, "true") || insecure == "1"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be non-zero")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("config: unsupported storage backend %q", c.Storage.Backend)
	}
	if c.RPC.TxBurst < 1 {
		return fmt.Errorf("config: rpc.TxBurst must be positive")
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		if c.Genesis == nil {
			return fmt.Errorf("config: either GenesisFile or a [genesis] table is required")
		}
		if err := c.Genesis.Validate(); err != nil {
			return fmt.Errorf("config: genesis: %w", err)
		}
	}
	return nil
}

// GenesisSpec returns the validated genesis, reading GenesisFile when set.
func (c *Config) GenesisSpec() (*genesis.GenesisSpec, error) {
	file := strings.TrimSpace(c.GenesisFile)
	if file == "" {
		if c.Genesis == nil {
			return nil, fmt.Errorf("config: no genesis configured")
		}
		return c.Genesis, c.Genesis.Validate()
	}
	if !filepath.IsAbs(file) && c.path != "" {
		file = filepath.Join(filepath.Dir(c.path), file)
	}
	return genesis.LoadGenesisSpec(file)
}

// OTel converts the telemetry section into exporter settings.
func (c *Config) OTel(service string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: c.Environment,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
		Traces:      c.Telemetry.Enabled && c.Telemetry.Traces,
		Metrics:     c.Telemetry.Enabled && c.Telemetry.Metrics,
	}
}

// Path is the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// DefaultGenesis is a local development network: a JEWEL currency, one
// mintable item token and a 2.5% trading fee administered by the deployer.
func DefaultGenesis() *genesis.GenesisSpec {
	return &genesis.GenesisSpec{
		Deployer: devDeployer,
		Market:   genesis.MarketSpec{Admin: devDeployer, TradingFeeBps: 250},
		Currency: genesis.TokenSpec{Symbol: "JEWEL", Name: "Jewel", Decimals: 18, Mintable: true},
		Items: []genesis.TokenSpec{
			{Symbol: "ITEM", Name: "Item", Mintable: true},
		},
		Alloc: map[string]map[string]string{},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Environment: "dev",
		RPCAddress:  defaultRPCAddress,
		DataDir:     defaultDataDir,
		ChainID:     DefaultChainID,
		Storage:     Storage{Backend: storage.BackendLevelDB},
		Telemetry:   Telemetry{Endpoint: "localhost:4318", Insecure: true, Traces: true, Metrics: true},
		Genesis:     DefaultGenesis(),
		path:        path,
	}
	cfg.applyDefaults()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
