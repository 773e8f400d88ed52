package account

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"maplemarket/core/types"
	"maplemarket/core/vm"
)

// FactoryClient drives the account factory through the host.
type FactoryClient struct {
	host *vm.Host
	addr common.Address
}

// NewFactoryClient binds a client to the factory at addr.
func NewFactoryClient(host *vm.Host, addr common.Address) *FactoryClient {
	return &FactoryClient{host: host, addr: addr}
}

// Address returns the factory address.
func (c *FactoryClient) Address() common.Address { return c.addr }

func (c *FactoryClient) view(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	out, err := c.host.StaticCall(ctx, vm.Message{To: c.addr, Data: pack(factoryABI, method, args...)})
	if err != nil {
		return nil, err
	}
	return unpack(factoryABI, method, out)
}

// HasAccount reports whether owner already has a wallet.
func (c *FactoryClient) HasAccount(ctx context.Context, owner common.Address) (bool, error) {
	values, err := c.view(ctx, "hasAccount", owner)
	if err != nil {
		return false, err
	}
	ok, _ := values[0].(bool)
	return ok, nil
}

// Accounts returns owner's wallet, or the zero address.
func (c *FactoryClient) Accounts(ctx context.Context, owner common.Address) (common.Address, error) {
	values, err := c.view(ctx, "accounts", owner)
	if err != nil {
		return common.Address{}, err
	}
	return vm.AddressArg(values[0])
}

// NumAccounts returns the number of wallets created so far.
func (c *FactoryClient) NumAccounts(ctx context.Context) (uint64, error) {
	values, err := c.view(ctx, "numAccounts")
	if err != nil {
		return 0, err
	}
	n, err := vm.Uint256Arg(values[0])
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// CreateAccount provisions owner's wallet with the given whitelist, funding it
// with value.
func (c *FactoryClient) CreateAccount(ctx context.Context, owner common.Address, initial []common.Address, value *uint256.Int) (common.Address, *types.Receipt, error) {
	receipt, err := c.host.Transact(ctx, vm.Message{From: owner, To: c.addr, Value: value, Data: CreateAccountCalldata(initial)})
	if err != nil {
		return common.Address{}, nil, err
	}
	values, err := unpack(factoryABI, "createAccountWithWhitelist", receipt.Return)
	if err != nil {
		return common.Address{}, nil, err
	}
	addr, err := vm.AddressArg(values[0])
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, receipt, nil
}

// WalletClient drives one wallet through the host.
type WalletClient struct {
	host *vm.Host
	addr common.Address
}

// NewWalletClient binds a client to the wallet at addr.
func NewWalletClient(host *vm.Host, addr common.Address) *WalletClient {
	return &WalletClient{host: host, addr: addr}
}

// Address returns the wallet address.
func (c *WalletClient) Address() common.Address { return c.addr }

func (c *WalletClient) view(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	out, err := c.host.StaticCall(ctx, vm.Message{To: c.addr, Data: pack(walletABI, method, args...)})
	if err != nil {
		return nil, err
	}
	return unpack(walletABI, method, out)
}

// Owner returns the wallet owner.
func (c *WalletClient) Owner(ctx context.Context) (common.Address, error) {
	values, err := c.view(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return vm.AddressArg(values[0])
}

// IsWhitelisted reports whether the wallet may forward calls to target.
func (c *WalletClient) IsWhitelisted(ctx context.Context, target common.Address) (bool, error) {
	values, err := c.view(ctx, "isWhitelisted", target)
	if err != nil {
		return false, err
	}
	ok, _ := values[0].(bool)
	return ok, nil
}

// Whitelist returns the whitelist in insertion order.
func (c *WalletClient) Whitelist(ctx context.Context) ([]common.Address, error) {
	values, err := c.view(ctx, "whitelist")
	if err != nil {
		return nil, err
	}
	members, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("account: unexpected whitelist type %T", values[0])
	}
	return members, nil
}

// AddToWhitelist adds target on behalf of caller.
func (c *WalletClient) AddToWhitelist(ctx context.Context, caller, target common.Address) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: AddToWhitelistCalldata(target)})
}

// Execute forwards payload to target through the wallet.
func (c *WalletClient) Execute(ctx context.Context, caller, target common.Address, payload []byte, value *uint256.Int) ([]byte, *types.Receipt, error) {
	receipt, err := c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: ExecuteCalldata(target, payload, value)})
	if err != nil {
		return nil, nil, err
	}
	values, err := unpack(walletABI, "execute", receipt.Return)
	if err != nil {
		return nil, nil, err
	}
	out, _ := values[0].([]byte)
	return out, receipt, nil
}

// Approve lets spender pull amount of tok from the wallet.
func (c *WalletClient) Approve(ctx context.Context, caller, tok, spender common.Address, amount *uint256.Int) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: ApproveCalldata(tok, spender, amount)})
}

// Withdraw moves amount of tok, or native value for the zero token, to the
// owner.
func (c *WalletClient) Withdraw(ctx context.Context, caller, tok common.Address, amount *uint256.Int) (*types.Receipt, error) {
	return c.host.Transact(ctx, vm.Message{From: caller, To: c.addr, Data: WithdrawCalldata(tok, amount)})
}
