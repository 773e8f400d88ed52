package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"maplemarket/core/vm"
)

// ABI is the call surface of the marketplace.
const ABI = `[
	{"type":"function","name":"numOffers","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"offers","inputs":[{"name":"id","type":"uint256"}],"outputs":[
		{"name":"creator","type":"address"},
		{"name":"item","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"costInJewel","type":"uint256"},
		{"name":"status","type":"uint8"},
		{"name":"bidder","type":"address"}
	],"stateMutability":"view"},
	{"type":"function","name":"admin","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"tradingFee","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"currency","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"custody","inputs":[{"name":"item","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"createOffer","inputs":[{"name":"item","type":"address"},{"name":"amount","type":"uint256"},{"name":"costInJewel","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"cancelOffer","inputs":[{"name":"id","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"changeOfferCost","inputs":[{"name":"id","type":"uint256"},{"name":"newCost","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"bid","inputs":[{"name":"id","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setTradingFee","inputs":[{"name":"bps","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"}
]`

func pack(method string, args ...interface{}) []byte {
	def := dispatcher.ABI()
	data, err := def.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("market: pack %s: %v", method, err))
	}
	return data
}

func unpack(method string, out []byte) ([]interface{}, error) {
	def := dispatcher.ABI()
	values, err := def.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("market: decode %s: %w", method, err)
	}
	return values, nil
}

func big256(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// CreateOfferCalldata encodes createOffer(item, amount, costInJewel).
func CreateOfferCalldata(item common.Address, amount, cost *uint256.Int) []byte {
	return pack("createOffer", item, big256(amount), big256(cost))
}

// CancelOfferCalldata encodes cancelOffer(id).
func CancelOfferCalldata(id uint64) []byte {
	return pack("cancelOffer", new(big.Int).SetUint64(id))
}

// ChangeOfferCostCalldata encodes changeOfferCost(id, newCost).
func ChangeOfferCostCalldata(id uint64, cost *uint256.Int) []byte {
	return pack("changeOfferCost", new(big.Int).SetUint64(id), big256(cost))
}

// BidCalldata encodes bid(id).
func BidCalldata(id uint64) []byte {
	return pack("bid", new(big.Int).SetUint64(id))
}

// SetTradingFeeCalldata encodes setTradingFee(bps).
func SetTradingFeeCalldata(bps uint64) []byte {
	return pack("setTradingFee", new(big.Int).SetUint64(bps))
}

// OfferCalldata encodes offers(id).
func OfferCalldata(id uint64) []byte {
	return pack("offers", new(big.Int).SetUint64(id))
}

// DecodeOfferID reads the id returned by createOffer.
func DecodeOfferID(out []byte) (uint64, error) {
	values, err := unpack("createOffer", out)
	if err != nil {
		return 0, err
	}
	id, err := vm.Uint256Arg(values[0])
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("market: offer id overflows uint64")
	}
	return id.Uint64(), nil
}
