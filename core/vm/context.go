package vm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"maplemarket/core/state"
	"maplemarket/core/types"
)

// Context is the call frame handed to a contract.
type Context struct {
	ctx     context.Context
	host    *Host
	depth   int
	genesis bool

	// Origin is the externally owned address that signed the transaction.
	Origin common.Address
	// Caller is the immediate caller: msg.sender.
	Caller common.Address
	// Self is the address of the running contract.
	Self common.Address
	// Value is the native value attached to this call.
	Value *uint256.Int
}

// Context returns the request context of the enclosing transaction.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// State exposes the transaction's state overlay.
func (c *Context) State() *state.StateDB { return c.host.state }

// Call invokes to with input as Self. Effects of a failing call are rolled
// back before the error is returned.
func (c *Context) Call(to common.Address, input []byte, value *uint256.Int) ([]byte, error) {
	return c.host.call(c, c.Self, to, input, value, c.depth)
}

// Deploy creates a contract of the given kind at the next address derived
// from Self and its nonce, forwards value to it and runs init in the new
// contract's frame.
func (c *Context) Deploy(kind string, value *uint256.Int, init func(*Context) error) (common.Address, error) {
	return c.host.deploy(c, kind, value, init)
}

// Emit records an event; it reaches the emitter only if the transaction
// commits and this frame is not reverted.
func (c *Context) Emit(eventType string, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	c.host.pending = append(c.host.pending, &types.Event{Type: eventType, Address: c.Self, Attributes: attrs})
}

// NativeBalance returns the native balance of addr.
func (c *Context) NativeBalance(addr common.Address) (*uint256.Int, error) {
	return c.host.state.GetUint256(nativeKey(addr))
}

// TransferNative moves native value from Self to to.
func (c *Context) TransferNative(to common.Address, amount *uint256.Int) error {
	return c.host.moveNative(c.Self, to, amount)
}

// Mint credits native value out of thin air. Only genesis frames may do so.
func (c *Context) Mint(to common.Address, amount *uint256.Int) error {
	if !c.genesis {
		return fmt.Errorf("vm: mint outside genesis")
	}
	balance, err := c.host.state.GetUint256(nativeKey(to))
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("vm: native balance overflow")
	}
	c.host.state.PutUint256(nativeKey(to), sum)
	return nil
}

// KindOf returns the contract kind deployed at addr.
func (c *Context) KindOf(addr common.Address) (string, error) {
	return c.host.state.GetString(codeKey(addr))
}
