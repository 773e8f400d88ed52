package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ABI is the call surface of a token contract.
const ABI = `[
	{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
	{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"mintable","inputs":[],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"allowance","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"mint","inputs":[{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"}
]`

func pack(method string, args ...interface{}) []byte {
	def := dispatcher.ABI()
	data, err := def.Pack(method, args...)
	if err != nil {
		// Arguments are typed by the exported helpers below.
		panic(fmt.Sprintf("token: pack %s: %v", method, err))
	}
	return data
}

func unpack(method string, out []byte) ([]interface{}, error) {
	def := dispatcher.ABI()
	values, err := def.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("token: decode %s: %w", method, err)
	}
	return values, nil
}

func big256(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// TransferCalldata encodes transfer(to, amount).
func TransferCalldata(to common.Address, amount *uint256.Int) []byte {
	return pack("transfer", to, big256(amount))
}

// ApproveCalldata encodes approve(spender, amount).
func ApproveCalldata(spender common.Address, amount *uint256.Int) []byte {
	return pack("approve", spender, big256(amount))
}

// TransferFromCalldata encodes transferFrom(from, to, amount).
func TransferFromCalldata(from, to common.Address, amount *uint256.Int) []byte {
	return pack("transferFrom", from, to, big256(amount))
}

// MintCalldata encodes mint(amount).
func MintCalldata(amount *uint256.Int) []byte {
	return pack("mint", big256(amount))
}

// BalanceOfCalldata encodes balanceOf(owner).
func BalanceOfCalldata(owner common.Address) []byte {
	return pack("balanceOf", owner)
}

// AllowanceCalldata encodes allowance(owner, spender).
func AllowanceCalldata(owner, spender common.Address) []byte {
	return pack("allowance", owner, spender)
}
