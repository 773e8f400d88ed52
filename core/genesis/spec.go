// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"maplemarket/native/fees"
)

// NativeSymbol is the allocation key for native value.
const NativeSymbol = "native"

type GenesisSpec struct {
	Deployer string                       `json:"deployer" toml:"Deployer"`
	Market   MarketSpec                   `json:"market" toml:"Market"`
	Currency TokenSpec                    `json:"currency" toml:"Currency"`
	Items    []TokenSpec                  `json:"items" toml:"Items"`
	Alloc    map[string]map[string]string `json:"alloc" toml:"Alloc"` // addr -> symbol -> amount

	deployer common.Address
	admin    common.Address
	alloc    []allocation
}

type MarketSpec struct {
	Admin         string `json:"admin" toml:"Admin"`
	TradingFeeBps uint64 `json:"tradingFeeBps" toml:"TradingFeeBPS"`
}

type TokenSpec struct {
	Symbol   string `json:"symbol" toml:"Symbol"`
	Name     string `json:"name" toml:"Name"`
	Decimals uint8  `json:"decimals" toml:"Decimals"`
	Mintable bool   `json:"mintable" toml:"Mintable"`
}

type allocation struct {
	holder common.Address
	symbol string
	amount *uint256.Int
}

// LoadGenesisSpec reads and validates a JSON genesis file.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}

func normalizeSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func (t TokenSpec) validate() error {
	if normalizeSymbol(t.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.EqualFold(strings.TrimSpace(t.Symbol), NativeSymbol) {
		return fmt.Errorf("symbol %q is reserved", t.Symbol)
	}
	return nil
}

// Validate checks the spec and resolves its addresses and amounts.
func (s *GenesisSpec) Validate() error {
	var err error
	if s.deployer, err = parseAddress("deployer", s.Deployer); err != nil {
		return err
	}
	if s.admin, err = parseAddress("market.admin", s.Market.Admin); err != nil {
		return err
	}
	if err := fees.ValidateBps(s.Market.TradingFeeBps); err != nil {
		return fmt.Errorf("market.tradingFeeBps: %w", err)
	}

	symbols := make(map[string]struct{}, len(s.Items)+1)
	if err := s.Currency.validate(); err != nil {
		return fmt.Errorf("currency: %w", err)
	}
	symbols[normalizeSymbol(s.Currency.Symbol)] = struct{}{}
	for i, item := range s.Items {
		if err := item.validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		key := normalizeSymbol(item.Symbol)
		if _, exists := symbols[key]; exists {
			return fmt.Errorf("items[%d]: duplicate symbol %q", i, item.Symbol)
		}
		symbols[key] = struct{}{}
	}

	// alloc (outer: addresses sorted; inner: symbols sorted)
	s.alloc = s.alloc[:0]
	holders := make([]string, 0, len(s.Alloc))
	for holder := range s.Alloc {
		holders = append(holders, holder)
	}
	sort.Strings(holders)
	for _, holder := range holders {
		addr, err := parseAddress(fmt.Sprintf("alloc[%q]", holder), holder)
		if err != nil {
			return err
		}
		entries := s.Alloc[holder]
		keys := make([]string, 0, len(entries))
		for symbol := range entries {
			keys = append(keys, symbol)
		}
		sort.Strings(keys)
		seen := make(map[string]struct{}, len(keys))
		for _, symbol := range keys {
			key := normalizeSymbol(symbol)
			if _, dup := seen[key]; dup {
				return fmt.Errorf("alloc[%q]: duplicate token %q", holder, symbol)
			}
			seen[key] = struct{}{}
			if _, ok := symbols[key]; !ok && key != normalizeSymbol(NativeSymbol) {
				return fmt.Errorf("alloc[%q][%q]: undefined token", holder, symbol)
			}
			amount, err := uint256.FromDecimal(strings.TrimSpace(entries[symbol]))
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: invalid amount %q: %w", holder, symbol, entries[symbol], err)
			}
			s.alloc = append(s.alloc, allocation{holder: addr, symbol: key, amount: amount})
		}
	}
	return nil
}

// sortedItems returns the item tokens in deployment order.
func (s *GenesisSpec) sortedItems() []TokenSpec {
	items := append([]TokenSpec(nil), s.Items...)
	sort.Slice(items, func(i, j int) bool {
		return normalizeSymbol(items[i].Symbol) < normalizeSymbol(items[j].Symbol)
	})
	return items
}
