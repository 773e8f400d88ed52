package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/vm"
	"maplemarket/native/token"
)

// WalletKind is the contract kind of account wallets.
const WalletKind = "account.wallet"

const (
	EventTypeWhitelisted = "account.whitelisted"
	EventTypeExecuted    = "account.executed"
)

var walletDispatcher = vm.MustDispatcher(WalletABI)

func init() {
	walletDispatcher.Handle("owner", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		owner, err := ctx.State().GetAddress(ownerKey(ctx.Self))
		if err != nil {
			return nil, err
		}
		return []interface{}{owner}, nil
	})
	walletDispatcher.Handle("isWhitelisted", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		target, err := vm.AddressArg(args[0])
		if err != nil {
			return nil, err
		}
		ok, err := isWhitelisted(ctx, target)
		if err != nil {
			return nil, err
		}
		return []interface{}{ok}, nil
	})
	walletDispatcher.Handle("whitelist", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		members, err := whitelist(ctx)
		if err != nil {
			return nil, err
		}
		return []interface{}{members}, nil
	})
	walletDispatcher.Handle("addToWhitelist", handleAddToWhitelist)
	walletDispatcher.Handle("execute", handleExecute)
	walletDispatcher.Handle("approve", handleApprove)
	walletDispatcher.Handle("withdraw", handleWithdraw)
	// Plain value transfers fund the wallet.
	walletDispatcher.Receive(func(*vm.Context) error { return nil })
}

type wallet struct{}

// NewWallet builds wallet contract instances for the host registry.
func NewWallet(common.Address) vm.Contract { return wallet{} }

func (wallet) Run(ctx *vm.Context, input []byte) ([]byte, error) {
	return walletDispatcher.Dispatch(ctx, input)
}

func (wallet) MethodName(input []byte) string { return walletDispatcher.MethodName(input) }

func initWallet(owner common.Address, initial []common.Address) func(*vm.Context) error {
	return func(ctx *vm.Context) error {
		if owner == (common.Address{}) {
			return fmt.Errorf("%w: wallet owner", mmerrors.ErrZeroAddress)
		}
		ctx.State().PutAddress(ownerKey(ctx.Self), owner)
		for _, target := range initial {
			if err := addMember(ctx, target); err != nil {
				return err
			}
		}
		return nil
	}
}

func onlyOwner(ctx *vm.Context) (common.Address, error) {
	owner, err := ctx.State().GetAddress(ownerKey(ctx.Self))
	if err != nil {
		return common.Address{}, err
	}
	if ctx.Caller != owner {
		return common.Address{}, fmt.Errorf("%w: %s", mmerrors.ErrNotOwner, ctx.Caller.Hex())
	}
	return owner, nil
}

func isWhitelisted(ctx *vm.Context, target common.Address) (bool, error) {
	data, err := ctx.State().Get(memberKey(ctx.Self, target))
	if err != nil {
		return false, err
	}
	return len(data) > 0, nil
}

func whitelist(ctx *vm.Context) ([]common.Address, error) {
	n, err := ctx.State().GetUint64(memberCountKey(ctx.Self))
	if err != nil {
		return nil, err
	}
	members := make([]common.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		addr, err := ctx.State().GetAddress(memberAtKey(ctx.Self, i))
		if err != nil {
			return nil, err
		}
		members = append(members, addr)
	}
	return members, nil
}

// addMember is idempotent: an address already present is left alone.
func addMember(ctx *vm.Context, target common.Address) error {
	if target == (common.Address{}) {
		return fmt.Errorf("%w: whitelist entry", mmerrors.ErrZeroAddress)
	}
	present, err := isWhitelisted(ctx, target)
	if err != nil || present {
		return err
	}
	n, err := ctx.State().GetUint64(memberCountKey(ctx.Self))
	if err != nil {
		return err
	}
	st := ctx.State()
	st.Put(memberKey(ctx.Self, target), []byte{1})
	st.PutAddress(memberAtKey(ctx.Self, n), target)
	st.PutUint64(memberCountKey(ctx.Self), n+1)
	ctx.Emit(EventTypeWhitelisted, map[string]string{
		"wallet": ctx.Self.Hex(),
		"target": target.Hex(),
	})
	return nil
}

func handleAddToWhitelist(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	target, err := vm.AddressArg(args[0])
	if err != nil {
		return nil, err
	}
	if _, err := onlyOwner(ctx); err != nil {
		return nil, err
	}
	return nil, addMember(ctx, target)
}

func requireWhitelisted(ctx *vm.Context, target common.Address) error {
	ok, err := isWhitelisted(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", mmerrors.ErrNotWhitelisted, target.Hex())
	}
	return nil
}

// handleExecute forwards payload to a whitelisted target as the wallet. The
// target's return data and error are passed through untouched.
func handleExecute(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	target, err := vm.AddressArg(args[0])
	if err != nil {
		return nil, err
	}
	payload, ok := args[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("account: expected bytes payload, got %T", args[1])
	}
	value, err := vm.Uint256Arg(args[2])
	if err != nil {
		return nil, err
	}
	if _, err := onlyOwner(ctx); err != nil {
		return nil, err
	}
	if err := requireWhitelisted(ctx, target); err != nil {
		return nil, err
	}
	out, err := ctx.Call(target, payload, value)
	if err != nil {
		return nil, err
	}
	ctx.Emit(EventTypeExecuted, map[string]string{
		"wallet": ctx.Self.Hex(),
		"target": target.Hex(),
		"value":  value.Dec(),
	})
	if out == nil {
		out = []byte{}
	}
	return []interface{}{out}, nil
}

func handleApprove(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	tok, err := vm.AddressArg(args[0])
	if err != nil {
		return nil, err
	}
	spender, err := vm.AddressArg(args[1])
	if err != nil {
		return nil, err
	}
	amount, err := vm.Uint256Arg(args[2])
	if err != nil {
		return nil, err
	}
	if _, err := onlyOwner(ctx); err != nil {
		return nil, err
	}
	if err := requireWhitelisted(ctx, spender); err != nil {
		return nil, err
	}
	return nil, token.Approve(ctx, tok, spender, amount)
}

func handleWithdraw(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	tok, err := vm.AddressArg(args[0])
	if err != nil {
		return nil, err
	}
	amount, err := vm.Uint256Arg(args[1])
	if err != nil {
		return nil, err
	}
	owner, err := onlyOwner(ctx)
	if err != nil {
		return nil, err
	}
	if tok == (common.Address{}) {
		return nil, ctx.TransferNative(owner, amount)
	}
	return nil, token.Transfer(ctx, tok, owner, amount)
}
