package account

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// WalletABI is the call surface of an account wallet.
const WalletABI = `[
	{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"isWhitelisted","inputs":[{"name":"target","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"whitelist","inputs":[],"outputs":[{"name":"","type":"address[]"}],"stateMutability":"view"},
	{"type":"function","name":"addToWhitelist","inputs":[{"name":"target","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"execute","inputs":[{"name":"target","type":"address"},{"name":"payload","type":"bytes"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bytes"}],"stateMutability":"payable"},
	{"type":"function","name":"approve","inputs":[{"name":"token","type":"address"},{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"withdraw","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"}
]`

// FactoryABI is the call surface of the account factory.
const FactoryABI = `[
	{"type":"function","name":"hasAccount","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"accounts","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"numAccounts","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"createAccountWithWhitelist","inputs":[{"name":"initialWhitelist","type":"address[]"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"payable"}
]`

var (
	walletABI  = mustParse(WalletABI)
	factoryABI = mustParse(FactoryABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("account: parse abi: %v", err))
	}
	return parsed
}

func pack(def abi.ABI, method string, args ...interface{}) []byte {
	data, err := def.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("account: pack %s: %v", method, err))
	}
	return data
}

func unpack(def abi.ABI, method string, out []byte) ([]interface{}, error) {
	values, err := def.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("account: decode %s: %w", method, err)
	}
	return values, nil
}

func big256(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// ExecuteCalldata encodes Wallet.execute(target, payload, value).
func ExecuteCalldata(target common.Address, payload []byte, value *uint256.Int) []byte {
	if payload == nil {
		payload = []byte{}
	}
	return pack(walletABI, "execute", target, payload, big256(value))
}

// AddToWhitelistCalldata encodes Wallet.addToWhitelist(target).
func AddToWhitelistCalldata(target common.Address) []byte {
	return pack(walletABI, "addToWhitelist", target)
}

// ApproveCalldata encodes Wallet.approve(token, spender, amount).
func ApproveCalldata(tok, spender common.Address, amount *uint256.Int) []byte {
	return pack(walletABI, "approve", tok, spender, big256(amount))
}

// WithdrawCalldata encodes Wallet.withdraw(token, amount). The zero token
// address withdraws native value.
func WithdrawCalldata(tok common.Address, amount *uint256.Int) []byte {
	return pack(walletABI, "withdraw", tok, big256(amount))
}

// CreateAccountCalldata encodes Factory.createAccountWithWhitelist(initial).
func CreateAccountCalldata(initial []common.Address) []byte {
	if initial == nil {
		initial = []common.Address{}
	}
	return pack(factoryABI, "createAccountWithWhitelist", initial)
}
