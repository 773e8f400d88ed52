package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"maplemarket/storage"
)

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv("MAPLE_ENV", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if cfg.ChainID != DefaultChainID {
		t.Fatalf("unexpected chain id %d", cfg.ChainID)
	}
	if cfg.Storage.Backend != storage.BackendLevelDB {
		t.Fatalf("unexpected backend %q", cfg.Storage.Backend)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	spec, err := reloaded.GenesisSpec()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if spec.Currency.Symbol != "JEWEL" || spec.Market.TradingFeeBps != 250 {
		t.Fatalf("unexpected default genesis: %+v", spec)
	}
	if len(spec.Items) != 1 || spec.Items[0].Symbol != "ITEM" {
		t.Fatalf("unexpected default items: %+v", spec.Items)
	}
}

func TestLoadAppliesDefaultsAndGenesisFile(t *testing.T) {
	t.Setenv("MAPLE_ENV", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	dir := t.TempDir()
	genesisJSON := `{
		"deployer": "0x00000000000000000000000000000000000000d0",
		"market": {"admin": "0x00000000000000000000000000000000000000ad", "tradingFeeBps": 300},
		"currency": {"symbol": "JEWEL", "name": "Jewel", "decimals": 18}
	}`
	if err := os.WriteFile(filepath.Join(dir, "genesis.json"), []byte(genesisJSON), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	contents := `ChainID = 7
GenesisFile = "genesis.json"

[market]
Paused = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress != defaultRPCAddress || cfg.DataDir != defaultDataDir {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.RPC.TxBurst != defaultTxBurst || cfg.RPC.TxPerSecond != defaultTxPerSecond {
		t.Fatalf("rpc defaults not applied: %+v", cfg.RPC)
	}
	if !cfg.Market.Paused {
		t.Fatalf("expected market to be paused")
	}
	spec, err := cfg.GenesisSpec()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if spec.Market.TradingFeeBps != 300 {
		t.Fatalf("unexpected fee %d", spec.Market.TradingFeeBps)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("MAPLE_ENV", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cases := map[string]string{
		"zero chain id": `ChainID = 0
GenesisFile = "genesis.json"
`,
		"bad backend": `ChainID = 1
GenesisFile = "genesis.json"
[storage]
Backend = "redis"
`,
		"no genesis": `ChainID = 1
`,
		"unknown key": `ChainID = 1
GenesisFile = "genesis.json"
ListenAddress = ":6001"
`,
		"fee too high": `ChainID = 1
[genesis]
Deployer = "0x00000000000000000000000000000000000000d0"
[genesis.Market]
Admin = "0x00000000000000000000000000000000000000ad"
TradingFeeBPS = 10001
[genesis.Currency]
Symbol = "JEWEL"
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected load to fail")
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MAPLE_ENV", "staging")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization=Bearer abc, x-team=market")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("unexpected environment %q", cfg.Environment)
	}
	otelCfg := cfg.OTel("maplemarketd")
	if otelCfg.Endpoint != "collector:4318" || otelCfg.Insecure {
		t.Fatalf("unexpected telemetry config: %+v", otelCfg)
	}
	if !otelCfg.Traces || !otelCfg.Metrics {
		t.Fatalf("expected exporters enabled: %+v", otelCfg)
	}
	if got := otelCfg.Headers["authorization"]; !strings.HasPrefix(got, "Bearer") {
		t.Fatalf("unexpected headers %v", otelCfg.Headers)
	}
	if otelCfg.Headers["x-team"] != "market" {
		t.Fatalf("unexpected headers %v", otelCfg.Headers)
	}
}
