package vm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	mmerrors "maplemarket/core/errors"
)

// Handler implements one ABI method. args are the decoded inputs; the
// returned values are packed as the method outputs.
type Handler func(ctx *Context, args []interface{}) ([]interface{}, error)

// Dispatcher routes ABI calldata (4-byte selector followed by the encoded
// arguments) to handlers.
type Dispatcher struct {
	abi      abi.ABI
	handlers map[string]Handler
	receive  func(ctx *Context) error
}

// MustDispatcher parses an ABI JSON definition and panics when it is
// malformed. Definitions are package constants, so failure is a programming
// error.
func MustDispatcher(definition string) *Dispatcher {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("vm: parse abi: %v", err))
	}
	return &Dispatcher{abi: parsed, handlers: make(map[string]Handler)}
}

// Handle binds name to fn. It panics when name is not part of the ABI.
func (d *Dispatcher) Handle(name string, fn Handler) *Dispatcher {
	if _, ok := d.abi.Methods[name]; !ok {
		panic(fmt.Sprintf("vm: method %q not in abi", name))
	}
	d.handlers[name] = fn
	return d
}

// Receive sets the handler for calls with empty calldata (plain value
// transfers).
func (d *Dispatcher) Receive(fn func(ctx *Context) error) *Dispatcher {
	d.receive = fn
	return d
}

// ABI returns the parsed definition.
func (d *Dispatcher) ABI() abi.ABI { return d.abi }

// Dispatch decodes input and runs the selected handler.
func (d *Dispatcher) Dispatch(ctx *Context, input []byte) ([]byte, error) {
	if len(input) == 0 {
		if d.receive == nil {
			return nil, fmt.Errorf("%w: empty calldata", mmerrors.ErrUnknownMethod)
		}
		return nil, d.receive(ctx)
	}
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: short selector", mmerrors.ErrUnknownMethod)
	}
	method, err := d.abi.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %x", mmerrors.ErrUnknownMethod, input[:4])
	}
	handler, ok := d.handlers[method.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mmerrors.ErrUnknownMethod, method.Name)
	}
	if !method.IsPayable() && ctx.Value != nil && !ctx.Value.IsZero() {
		return nil, fmt.Errorf("%w: %s", mmerrors.ErrNotPayable, method.Name)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("vm: decode %s: %w", method.Name, err)
	}
	outs, err := handler(ctx, args)
	if err != nil {
		return nil, err
	}
	packed, err := method.Outputs.Pack(outs...)
	if err != nil {
		return nil, fmt.Errorf("vm: encode %s: %w", method.Name, err)
	}
	return packed, nil
}

// MethodName implements MethodNamer.
func (d *Dispatcher) MethodName(input []byte) string {
	if len(input) < 4 {
		return ""
	}
	method, err := d.abi.MethodById(input[:4])
	if err != nil {
		return ""
	}
	return method.Name
}

// Uint256Arg converts a decoded ABI uint256 argument.
func Uint256Arg(arg interface{}) (*uint256.Int, error) {
	b, ok := arg.(*big.Int)
	if !ok || b == nil {
		return nil, fmt.Errorf("vm: expected uint256 argument, got %T", arg)
	}
	v, overflow := uint256.FromBig(b)
	if overflow || b.Sign() < 0 {
		return nil, fmt.Errorf("vm: uint256 argument out of range")
	}
	return v, nil
}

// AddressArg converts a decoded ABI address argument.
func AddressArg(arg interface{}) (common.Address, error) {
	addr, ok := arg.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("vm: expected address argument, got %T", arg)
	}
	return addr, nil
}

// BigOut converts v for packing as an ABI uint256 output.
func BigOut(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
