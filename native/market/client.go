package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"maplemarket/core/types"
	"maplemarket/core/vm"
)

// Client drives a deployed marketplace through the host.
type Client struct {
	host *vm.Host
	addr common.Address
}

// NewClient binds a client to the marketplace at addr.
func NewClient(host *vm.Host, addr common.Address) *Client {
	return &Client{host: host, addr: addr}
}

// Address returns the marketplace address.
func (c *Client) Address() common.Address { return c.addr }

func (c *Client) view(ctx context.Context, method string, input []byte) ([]interface{}, error) {
	out, err := c.host.StaticCall(ctx, vm.Message{To: c.addr, Data: input})
	if err != nil {
		return nil, err
	}
	return unpack(method, out)
}

func (c *Client) viewAddress(ctx context.Context, method string) (common.Address, error) {
	values, err := c.view(ctx, method, pack(method))
	if err != nil {
		return common.Address{}, err
	}
	return vm.AddressArg(values[0])
}

func (c *Client) viewUint(ctx context.Context, method string, args ...interface{}) (*uint256.Int, error) {
	values, err := c.view(ctx, method, pack(method, args...))
	if err != nil {
		return nil, err
	}
	return vm.Uint256Arg(values[0])
}

// NumOffers returns how many offers were ever created.
func (c *Client) NumOffers(ctx context.Context) (uint64, error) {
	n, err := c.viewUint(ctx, "numOffers")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// Admin returns the fee recipient and fee governor.
func (c *Client) Admin(ctx context.Context) (common.Address, error) {
	return c.viewAddress(ctx, "admin")
}

// Currency returns the token offers are priced in.
func (c *Client) Currency(ctx context.Context) (common.Address, error) {
	return c.viewAddress(ctx, "currency")
}

// TradingFee returns the fee rate in basis points.
func (c *Client) TradingFee(ctx context.Context) (uint64, error) {
	bps, err := c.viewUint(ctx, "tradingFee")
	if err != nil {
		return 0, err
	}
	return bps.Uint64(), nil
}

// Custody returns how much of item the marketplace holds for active offers.
func (c *Client) Custody(ctx context.Context, item common.Address) (*uint256.Int, error) {
	return c.viewUint(ctx, "custody", item)
}

// Offer returns offer id.
func (c *Client) Offer(ctx context.Context, id uint64) (*Offer, error) {
	values, err := c.view(ctx, "offers", OfferCalldata(id))
	if err != nil {
		return nil, err
	}
	if len(values) != 6 {
		return nil, fmt.Errorf("market: offers returned %d values", len(values))
	}
	o := &Offer{ID: id}
	if o.Creator, err = vm.AddressArg(values[0]); err != nil {
		return nil, err
	}
	if o.Item, err = vm.AddressArg(values[1]); err != nil {
		return nil, err
	}
	if o.Amount, err = vm.Uint256Arg(values[2]); err != nil {
		return nil, err
	}
	if o.CostInJewel, err = vm.Uint256Arg(values[3]); err != nil {
		return nil, err
	}
	status, ok := values[4].(uint8)
	if !ok {
		return nil, fmt.Errorf("market: unexpected status type %T", values[4])
	}
	o.Status = Status(status)
	if o.Bidder, err = vm.AddressArg(values[5]); err != nil {
		return nil, err
	}
	return o, nil
}

// Offers returns every offer in id order, optionally only those in status.
func (c *Client) Offers(ctx context.Context, status *Status) ([]*Offer, error) {
	n, err := c.NumOffers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Offer, 0, n)
	for id := uint64(0); id < n; id++ {
		o, err := c.Offer(ctx, id)
		if err != nil {
			return nil, err
		}
		if status != nil && o.Status != *status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// CreateOffer lists amount of item at cost, sent directly by caller.
func (c *Client) CreateOffer(ctx context.Context, caller, item common.Address, amount, cost *uint256.Int) (uint64, *types.Receipt, error) {
	receipt, err := c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: CreateOfferCalldata(item, amount, cost)})
	if err != nil {
		return 0, nil, err
	}
	id, err := DecodeOfferID(receipt.Return)
	if err != nil {
		return 0, nil, err
	}
	return id, receipt, nil
}

// CancelOffer cancels offer id on behalf of caller.
func (c *Client) CancelOffer(ctx context.Context, caller common.Address, id uint64) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: CancelOfferCalldata(id)})
}

// ChangeOfferCost reprices offer id on behalf of caller.
func (c *Client) ChangeOfferCost(ctx context.Context, caller common.Address, id uint64, cost *uint256.Int) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: ChangeOfferCostCalldata(id, cost)})
}

// Bid buys offer id for caller.
func (c *Client) Bid(ctx context.Context, caller common.Address, id uint64) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: BidCalldata(id)})
}

// SetTradingFee changes the fee rate for future bids.
func (c *Client) SetTradingFee(ctx context.Context, caller common.Address, bps uint64) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: SetTradingFeeCalldata(bps)})
}
