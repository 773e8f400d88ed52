package token

import (
	"github.com/ethereum/go-ethereum/common"

	"maplemarket/core/state"
)

var prefix = []byte("token")

func metaKey(tok common.Address) []byte {
	return state.Key(prefix, tok.Bytes(), []byte("meta"))
}

func supplyKey(tok common.Address) []byte {
	return state.Key(prefix, tok.Bytes(), []byte("supply"))
}

func balanceKey(tok, owner common.Address) []byte {
	return state.Key(prefix, tok.Bytes(), []byte("balance"), owner.Bytes())
}

func allowanceKey(tok, owner, spender common.Address) []byte {
	return state.Key(prefix, tok.Bytes(), []byte("allowance"), owner.Bytes(), spender.Bytes())
}
