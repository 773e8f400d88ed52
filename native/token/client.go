package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"maplemarket/core/types"
	"maplemarket/core/vm"
)

// Client drives a deployed token through the host, one transaction per
// state-changing call.
type Client struct {
	host *vm.Host
	addr common.Address
}

// NewClient binds a client to the token at addr.
func NewClient(host *vm.Host, addr common.Address) *Client {
	return &Client{host: host, addr: addr}
}

// Address returns the token address.
func (c *Client) Address() common.Address { return c.addr }

func (c *Client) view(ctx context.Context, method string, input []byte) ([]interface{}, error) {
	out, err := c.host.StaticCall(ctx, vm.Message{To: c.addr, Data: input})
	if err != nil {
		return nil, err
	}
	return unpack(method, out)
}

// Metadata reads name, symbol, decimals and the mint flag.
func (c *Client) Metadata(ctx context.Context) (Metadata, error) {
	var meta Metadata
	values, err := c.view(ctx, "name", pack("name"))
	if err != nil {
		return meta, err
	}
	meta.Name, _ = values[0].(string)
	if values, err = c.view(ctx, "symbol", pack("symbol")); err != nil {
		return meta, err
	}
	meta.Symbol, _ = values[0].(string)
	if values, err = c.view(ctx, "decimals", pack("decimals")); err != nil {
		return meta, err
	}
	meta.Decimals, _ = values[0].(uint8)
	if values, err = c.view(ctx, "mintable", pack("mintable")); err != nil {
		return meta, err
	}
	meta.Mintable, _ = values[0].(bool)
	return meta, nil
}

// TotalSupply returns the number of units in existence.
func (c *Client) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	values, err := c.view(ctx, "totalSupply", pack("totalSupply"))
	if err != nil {
		return nil, err
	}
	return vm.Uint256Arg(values[0])
}

// BalanceOf returns owner's balance.
func (c *Client) BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	values, err := c.view(ctx, "balanceOf", BalanceOfCalldata(owner))
	if err != nil {
		return nil, err
	}
	return vm.Uint256Arg(values[0])
}

// Allowance returns what spender may still pull from owner.
func (c *Client) Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error) {
	values, err := c.view(ctx, "allowance", AllowanceCalldata(owner, spender))
	if err != nil {
		return nil, err
	}
	return vm.Uint256Arg(values[0])
}

// Transfer sends amount from from to to.
func (c *Client) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: from, To: c.addr, Data: TransferCalldata(to, amount)})
}

// Approve sets spender's allowance over owner's balance.
func (c *Client) Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: owner, To: c.addr, Data: ApproveCalldata(spender, amount)})
}

// TransferFrom moves amount from from to to, spending spender's allowance.
func (c *Client) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: spender, To: c.addr, Data: TransferFromCalldata(from, to, amount)})
}

// Mint credits amount to caller on a mintable token.
func (c *Client) Mint(ctx context.Context, caller common.Address, amount *uint256.Int) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: MintCalldata(amount)})
}
