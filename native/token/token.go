package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/vm"
)

// Kind is the contract kind under which token contracts are registered.
const Kind = "token"

const (
	EventTypeTransfer = "token.transfer"
	EventTypeApproval = "token.approval"
)

// Metadata describes a token. It is fixed at deployment.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
	// Mintable tokens let any caller mint to itself.
	Mintable bool
}

// Allocation is an initial balance credited when the token is deployed.
type Allocation struct {
	Holder common.Address
	Amount *uint256.Int
}

var dispatcher = vm.MustDispatcher(ABI)

func init() {
	dispatcher.Handle("name", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		meta, err := loadMetadata(ctx)
		if err != nil {
			return nil, err
		}
		return []interface{}{meta.Name}, nil
	})
	dispatcher.Handle("symbol", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		meta, err := loadMetadata(ctx)
		if err != nil {
			return nil, err
		}
		return []interface{}{meta.Symbol}, nil
	})
	dispatcher.Handle("decimals", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		meta, err := loadMetadata(ctx)
		if err != nil {
			return nil, err
		}
		return []interface{}{meta.Decimals}, nil
	})
	dispatcher.Handle("mintable", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		meta, err := loadMetadata(ctx)
		if err != nil {
			return nil, err
		}
		return []interface{}{meta.Mintable}, nil
	})
	dispatcher.Handle("totalSupply", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		supply, err := ctx.State().GetUint256(supplyKey(ctx.Self))
		if err != nil {
			return nil, err
		}
		return []interface{}{vm.BigOut(supply)}, nil
	})
	dispatcher.Handle("balanceOf", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		owner, err := vm.AddressArg(args[0])
		if err != nil {
			return nil, err
		}
		balance, err := ctx.State().GetUint256(balanceKey(ctx.Self, owner))
		if err != nil {
			return nil, err
		}
		return []interface{}{vm.BigOut(balance)}, nil
	})
	dispatcher.Handle("allowance", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		owner, err := vm.AddressArg(args[0])
		if err != nil {
			return nil, err
		}
		spender, err := vm.AddressArg(args[1])
		if err != nil {
			return nil, err
		}
		allowance, err := ctx.State().GetUint256(allowanceKey(ctx.Self, owner, spender))
		if err != nil {
			return nil, err
		}
		return []interface{}{vm.BigOut(allowance)}, nil
	})
	dispatcher.Handle("transfer", handleTransfer)
	dispatcher.Handle("approve", handleApprove)
	dispatcher.Handle("transferFrom", handleTransferFrom)
	dispatcher.Handle("mint", handleMint)
}

type contract struct{}

// New builds token contract instances for the host registry.
func New(common.Address) vm.Contract { return contract{} }

// Register binds Kind on host.
func Register(host *vm.Host) error { return host.Register(Kind, New) }

func (contract) Run(ctx *vm.Context, input []byte) ([]byte, error) {
	return dispatcher.Dispatch(ctx, input)
}

func (contract) MethodName(input []byte) string { return dispatcher.MethodName(input) }

// Init returns the constructor for a token with the given metadata and
// initial allocations. Pass it to vm.Context.Deploy.
func Init(meta Metadata, alloc ...Allocation) func(*vm.Context) error {
	return func(ctx *vm.Context) error {
		if meta.Symbol == "" {
			return fmt.Errorf("token: symbol required")
		}
		if err := ctx.State().PutRLP(metaKey(ctx.Self), &meta); err != nil {
			return err
		}
		for _, a := range alloc {
			if err := mint(ctx, a.Holder, a.Amount); err != nil {
				return err
			}
		}
		return nil
	}
}

func loadMetadata(ctx *vm.Context) (Metadata, error) {
	var meta Metadata
	ok, err := ctx.State().GetRLP(metaKey(ctx.Self), &meta)
	if err != nil {
		return Metadata{}, err
	}
	if !ok {
		return Metadata{}, fmt.Errorf("token: %s not initialised", ctx.Self.Hex())
	}
	return meta, nil
}

func handleTransfer(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	to, err := vm.AddressArg(args[0])
	if err != nil {
		return nil, err
	}
	amount, err := vm.Uint256Arg(args[1])
	if err != nil {
		return nil, err
	}
	if err := move(ctx, ctx.Caller, to, amount); err != nil {
		return nil, err
	}
	return []interface{}{true}, nil
}

func handleApprove(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	spender, err := vm.AddressArg(args[0])
	if err != nil {
		return nil, err
	}
	amount, err := vm.Uint256Arg(args[1])
	if err != nil {
		return nil, err
	}
	if spender == (common.Address{}) {
		return nil, fmt.Errorf("%w: approve to zero address", mmerrors.ErrZeroAddress)
	}
	ctx.State().PutUint256(allowanceKey(ctx.Self, ctx.Caller, spender), amount)
	ctx.Emit(EventTypeApproval, map[string]string{
		"owner":   ctx.Caller.Hex(),
		"spender": spender.Hex(),
		"amount":  amount.Dec(),
	})
	return []interface{}{true}, nil
}

func handleTransferFrom(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	from, err := vm.AddressArg(args[0])
	if err != nil {
		return nil, err
	}
	to, err := vm.AddressArg(args[1])
	if err != nil {
		return nil, err
	}
	amount, err := vm.Uint256Arg(args[2])
	if err != nil {
		return nil, err
	}
	key := allowanceKey(ctx.Self, from, ctx.Caller)
	allowance, err := ctx.State().GetUint256(key)
	if err != nil {
		return nil, err
	}
	if allowance.Lt(amount) {
		return nil, fmt.Errorf("%w: %s allows %s, needs %s", mmerrors.ErrInsufficientAllowance, ctx.Caller.Hex(), allowance.Dec(), amount.Dec())
	}
	// An allowance of 2^256-1 is never spent down.
	if !allowance.Eq(maxAllowance) {
		ctx.State().PutUint256(key, new(uint256.Int).Sub(allowance, amount))
	}
	if err := move(ctx, from, to, amount); err != nil {
		return nil, err
	}
	return []interface{}{true}, nil
}

func handleMint(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	amount, err := vm.Uint256Arg(args[0])
	if err != nil {
		return nil, err
	}
	meta, err := loadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if !meta.Mintable {
		return nil, mmerrors.ErrMintDisabled
	}
	return nil, mint(ctx, ctx.Caller, amount)
}

var maxAllowance = new(uint256.Int).SetAllOne()

func move(ctx *vm.Context, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", mmerrors.ErrZeroAddress)
	}
	st := ctx.State()
	fromBalance, err := st.GetUint256(balanceKey(ctx.Self, from))
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", mmerrors.ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), amount.Dec())
	}
	if from != to {
		toBalance, err := st.GetUint256(balanceKey(ctx.Self, to))
		if err != nil {
			return err
		}
		st.PutUint256(balanceKey(ctx.Self, from), new(uint256.Int).Sub(fromBalance, amount))
		// Cannot overflow: every balance is bounded by the total supply.
		st.PutUint256(balanceKey(ctx.Self, to), new(uint256.Int).Add(toBalance, amount))
	}
	ctx.Emit(EventTypeTransfer, map[string]string{
		"from":   from.Hex(),
		"to":     to.Hex(),
		"amount": amount.Dec(),
	})
	return nil
}

func mint(ctx *vm.Context, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: mint to zero address", mmerrors.ErrZeroAddress)
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	st := ctx.State()
	supply, err := st.GetUint256(supplyKey(ctx.Self))
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return fmt.Errorf("token: total supply overflow")
	}
	balance, err := st.GetUint256(balanceKey(ctx.Self, to))
	if err != nil {
		return err
	}
	st.PutUint256(supplyKey(ctx.Self), next)
	st.PutUint256(balanceKey(ctx.Self, to), new(uint256.Int).Add(balance, amount))
	ctx.Emit(EventTypeTransfer, map[string]string{
		"from":   common.Address{}.Hex(),
		"to":     to.Hex(),
		"amount": amount.Dec(),
	})
	return nil
}
