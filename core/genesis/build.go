package genesis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"maplemarket/core/vm"
	"maplemarket/native/account"
	nativecommon "maplemarket/native/common"
	"maplemarket/native/market"
	"maplemarket/native/token"
)

// Deployment lists the contract addresses created by genesis.
type Deployment struct {
	Deployer common.Address            `json:"deployer"`
	Currency common.Address            `json:"currency"`
	Items    map[string]common.Address `json:"items"`
	Factory  common.Address            `json:"factory"`
	Market   common.Address            `json:"market"`
}

// RegisterContracts binds every contract kind the node runs. It must be called
// on each start before the host serves calls.
func RegisterContracts(host *vm.Host, pauses nativecommon.PauseView) error {
	if err := token.Register(host); err != nil {
		return err
	}
	if err := account.Register(host); err != nil {
		return err
	}
	return market.Register(host, pauses)
}

// Addresses derives where Build places each contract: the deployer's nonces
// are consumed by the currency, the items in symbol order, the factory and
// the market.
func (s *GenesisSpec) Addresses() *Deployment {
	d := &Deployment{Deployer: s.deployer, Items: make(map[string]common.Address, len(s.Items))}
	nonce := uint64(0)
	next := func() common.Address {
		addr := crypto.CreateAddress(s.deployer, nonce)
		nonce++
		return addr
	}
	d.Currency = next()
	for _, item := range s.sortedItems() {
		d.Items[normalizeSymbol(item.Symbol)] = next()
	}
	d.Factory = next()
	d.Market = next()
	return d
}

// Build deploys the marketplace described by spec. Running it against a host
// whose state already holds the deployment is a no-op.
func Build(ctx context.Context, host *vm.Host, spec *GenesisSpec, logger *slog.Logger) (*Deployment, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if host == nil {
		return nil, fmt.Errorf("host must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	want := spec.Addresses()
	kind, err := host.KindOf(want.Market)
	if err != nil {
		return nil, err
	}
	if kind == market.Kind {
		logger.Info("genesis already applied", slog.String("market", want.Market.Hex()))
		return want, nil
	}
	nonce, err := host.Nonce(spec.deployer)
	if err != nil {
		return nil, err
	}
	if nonce != 0 {
		return nil, fmt.Errorf("genesis: deployer %s already used (nonce %d)", spec.deployer.Hex(), nonce)
	}

	got := &Deployment{Deployer: spec.deployer, Items: make(map[string]common.Address, len(spec.Items))}
	receipt, err := host.Genesis(ctx, spec.deployer, func(c *vm.Context) error {
		var err error
		got.Currency, err = c.Deploy(token.Kind, nil, token.Init(metadata(spec.Currency), spec.allocationsFor(spec.Currency.Symbol)...))
		if err != nil {
			return fmt.Errorf("deploy currency: %w", err)
		}
		for _, item := range spec.sortedItems() {
			addr, err := c.Deploy(token.Kind, nil, token.Init(metadata(item), spec.allocationsFor(item.Symbol)...))
			if err != nil {
				return fmt.Errorf("deploy item %q: %w", item.Symbol, err)
			}
			got.Items[normalizeSymbol(item.Symbol)] = addr
		}
		if got.Factory, err = c.Deploy(account.FactoryKind, nil, nil); err != nil {
			return fmt.Errorf("deploy factory: %w", err)
		}
		got.Market, err = c.Deploy(market.Kind, nil, market.Init(market.Config{
			Admin:    spec.admin,
			Currency: got.Currency,
			FeeBps:   spec.Market.TradingFeeBps,
		}))
		if err != nil {
			return fmt.Errorf("deploy market: %w", err)
		}
		for _, a := range spec.alloc {
			if a.symbol != normalizeSymbol(NativeSymbol) {
				continue
			}
			if err := c.Mint(a.holder, a.amount); err != nil {
				return fmt.Errorf("native alloc %s: %w", a.holder.Hex(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("genesis applied",
		slog.String("currency", got.Currency.Hex()),
		slog.String("factory", got.Factory.Hex()),
		slog.String("market", got.Market.Hex()),
		slog.Int("items", len(got.Items)),
		slog.String("root", receipt.Root.Hex()))
	return got, nil
}

func metadata(t TokenSpec) token.Metadata {
	return token.Metadata{Name: t.Name, Symbol: normalizeSymbol(t.Symbol), Decimals: t.Decimals, Mintable: t.Mintable}
}

func (s *GenesisSpec) allocationsFor(symbol string) []token.Allocation {
	key := normalizeSymbol(symbol)
	var out []token.Allocation
	for _, a := range s.alloc {
		if a.symbol == key {
			out = append(out, token.Allocation{Holder: a.holder, Amount: a.amount})
		}
	}
	return out
}
