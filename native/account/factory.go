package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/vm"
)

// FactoryKind is the contract kind of the account factory.
const FactoryKind = "account.factory"

const EventTypeCreated = "account.created"

var factoryDispatcher = vm.MustDispatcher(FactoryABI)

func init() {
	factoryDispatcher.Handle("hasAccount", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		owner, err := vm.AddressArg(args[0])
		if err != nil {
			return nil, err
		}
		wallet, err := ctx.State().GetAddress(accountKey(ctx.Self, owner))
		if err != nil {
			return nil, err
		}
		return []interface{}{wallet != (common.Address{})}, nil
	})
	factoryDispatcher.Handle("accounts", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		owner, err := vm.AddressArg(args[0])
		if err != nil {
			return nil, err
		}
		wallet, err := ctx.State().GetAddress(accountKey(ctx.Self, owner))
		if err != nil {
			return nil, err
		}
		return []interface{}{wallet}, nil
	})
	factoryDispatcher.Handle("numAccounts", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		n, err := ctx.State().GetUint256(accountCountKey(ctx.Self))
		if err != nil {
			return nil, err
		}
		return []interface{}{vm.BigOut(n)}, nil
	})
	factoryDispatcher.Handle("createAccountWithWhitelist", handleCreateAccount)
}

type factory struct{}

// NewFactory builds account factory instances for the host registry.
func NewFactory(common.Address) vm.Contract { return factory{} }

func (factory) Run(ctx *vm.Context, input []byte) ([]byte, error) {
	return factoryDispatcher.Dispatch(ctx, input)
}

func (factory) MethodName(input []byte) string { return factoryDispatcher.MethodName(input) }

// Register binds both account kinds on host.
func Register(host *vm.Host) error {
	if err := host.Register(WalletKind, NewWallet); err != nil {
		return err
	}
	return host.Register(FactoryKind, NewFactory)
}

// handleCreateAccount deploys the caller's one and only wallet, seeds its
// whitelist and forwards the attached value to it.
func handleCreateAccount(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
	initial, ok := args[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("account: expected address list, got %T", args[0])
	}
	owner := ctx.Caller
	key := accountKey(ctx.Self, owner)
	existing, err := ctx.State().GetAddress(key)
	if err != nil {
		return nil, err
	}
	if existing != (common.Address{}) {
		return nil, fmt.Errorf("%w: %s owns %s", mmerrors.ErrAlreadyExists, owner.Hex(), existing.Hex())
	}
	addr, err := ctx.Deploy(WalletKind, ctx.Value, initWallet(owner, initial))
	if err != nil {
		return nil, err
	}
	ctx.State().PutAddress(key, addr)
	n, err := ctx.State().GetUint64(accountCountKey(ctx.Self))
	if err != nil {
		return nil, err
	}
	ctx.State().PutUint64(accountCountKey(ctx.Self), n+1)
	ctx.Emit(EventTypeCreated, map[string]string{
		"owner":  owner.Hex(),
		"wallet": addr.Hex(),
		"value":  ctx.Value.Dec(),
	})
	return []interface{}{addr}, nil
}
