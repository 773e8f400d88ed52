package account

import (
	"github.com/ethereum/go-ethereum/common"

	"maplemarket/core/state"
)

var (
	walletPrefix  = []byte("account/wallet")
	factoryPrefix = []byte("account/factory")
)

func ownerKey(wallet common.Address) []byte {
	return state.Key(walletPrefix, wallet.Bytes(), []byte("owner"))
}

func memberKey(wallet, target common.Address) []byte {
	return state.Key(walletPrefix, wallet.Bytes(), []byte("member"), target.Bytes())
}

func memberCountKey(wallet common.Address) []byte {
	return state.Key(walletPrefix, wallet.Bytes(), []byte("members"))
}

func memberAtKey(wallet common.Address, i uint64) []byte {
	return state.Key(walletPrefix, wallet.Bytes(), []byte("members"), state.Uint64Key(i))
}

func accountKey(factory, owner common.Address) []byte {
	return state.Key(factoryPrefix, factory.Bytes(), []byte("account"), owner.Bytes())
}

func accountCountKey(factory common.Address) []byte {
	return state.Key(factoryPrefix, factory.Bytes(), []byte("count"))
}
