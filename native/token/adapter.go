package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/vm"
)

// The functions below move assets on behalf of the running contract. A
// failed call and a false result are both reported as ErrTransferFailed,
// wrapping the underlying cause.

// Transfer sends amount of tok from the running contract to to.
func Transfer(ctx *vm.Context, tok, to common.Address, amount *uint256.Int) error {
	return callBool(ctx, tok, "transfer", TransferCalldata(to, amount))
}

// TransferFrom pulls amount of tok from from to to using the running
// contract's allowance.
func TransferFrom(ctx *vm.Context, tok, from, to common.Address, amount *uint256.Int) error {
	return callBool(ctx, tok, "transferFrom", TransferFromCalldata(from, to, amount))
}

// Approve lets spender pull up to amount of tok from the running contract.
func Approve(ctx *vm.Context, tok, spender common.Address, amount *uint256.Int) error {
	return callBool(ctx, tok, "approve", ApproveCalldata(spender, amount))
}

// BalanceOf reads owner's balance of tok.
func BalanceOf(ctx *vm.Context, tok, owner common.Address) (*uint256.Int, error) {
	out, err := ctx.Call(tok, BalanceOfCalldata(owner), nil)
	if err != nil {
		return nil, err
	}
	values, err := unpack("balanceOf", out)
	if err != nil {
		return nil, err
	}
	return vm.Uint256Arg(values[0])
}

func callBool(ctx *vm.Context, tok common.Address, method string, input []byte) error {
	out, err := ctx.Call(tok, input, nil)
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %w", mmerrors.ErrTransferFailed, method, tok.Hex(), err)
	}
	values, err := unpack(method, out)
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %w", mmerrors.ErrTransferFailed, method, tok.Hex(), err)
	}
	if ok, _ := values[0].(bool); !ok {
		return fmt.Errorf("%w: %s on %s returned false", mmerrors.ErrTransferFailed, method, tok.Hex())
	}
	return nil
}
