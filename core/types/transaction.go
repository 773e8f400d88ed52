package types

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Transaction is the signed envelope submitted by external callers. The
// sender is never part of the payload; it is recovered from the signature.
type Transaction struct {
	ChainID   uint64         `json:"chainId"`
	Nonce     uint64         `json:"nonce"`
	To        common.Address `json:"to"`
	Value     *big.Int       `json:"value"`
	Data      []byte         `json:"data"`
	Signature []byte         `json:"signature"`

	from *common.Address
}

type signingPayload struct {
	ChainID uint64
	Nonce   uint64
	To      common.Address
	Value   *big.Int
	Data    []byte
}

// Hash returns keccak256(rlp([chainId, nonce, to, value, data])).
func (tx *Transaction) Hash() (common.Hash, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	encoded, err := rlp.EncodeToBytes(&signingPayload{
		ChainID: tx.ChainID,
		Nonce:   tx.Nonce,
		To:      tx.To,
		Value:   value,
		Data:    tx.Data,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// Sign fills the signature using the supplied key.
func (tx *Transaction) Sign(key *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return err
	}
	tx.Signature = sig
	tx.from = nil
	return nil
}

// Sender recovers the signing address. The result is cached.
func (tx *Transaction) Sender() (common.Address, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	if len(tx.Signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	hash, err := tx.Hash()
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash.Bytes(), tx.Signature)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(*pub)
	tx.from = &addr
	return addr, nil
}

// Receipt summarises a committed transaction.
type Receipt struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Nonce  uint64         `json:"nonce"`
	Return []byte         `json:"return"`
	Events []*Event       `json:"events"`
	// Root is the trie root of the key/value pairs written by the
	// transaction.
	Root common.Hash `json:"root"`
}
