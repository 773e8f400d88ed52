package state

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Key joins namespace segments with '/' into a raw state key. The key is
// hashed by StateDB so its length does not matter.
func Key(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, p...)
	}
	return buf
}

// Uint64Key encodes n big-endian for use as a key segment.
func Uint64Key(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

// GetRLP decodes the value under key into out. It reports false when the key
// is absent, leaving out untouched.
func (s *StateDB) GetRLP(key []byte, out interface{}) (bool, error) {
	data, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %T: %w", out, err)
	}
	return true, nil
}

// PutRLP encodes v and stores it under key.
func (s *StateDB) PutRLP(key []byte, v interface{}) error {
	encoded, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("state: encode %T: %w", v, err)
	}
	s.Put(key, encoded)
	return nil
}

// GetUint256 returns the integer under key, zero when absent.
func (s *StateDB) GetUint256(key []byte) (*uint256.Int, error) {
	data, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if len(data) > 32 {
		return nil, fmt.Errorf("state: integer value of %d bytes", len(data))
	}
	return new(uint256.Int).SetBytes(data), nil
}

// PutUint256 stores v under key; zero clears the key.
func (s *StateDB) PutUint256(key []byte, v *uint256.Int) {
	if v == nil || v.IsZero() {
		s.Delete(key)
		return
	}
	s.Put(key, v.Bytes())
}

// GetUint64 returns the counter under key, zero when absent.
func (s *StateDB) GetUint64(key []byte) (uint64, error) {
	v, err := s.GetUint256(key)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("state: counter overflows uint64")
	}
	return v.Uint64(), nil
}

// PutUint64 stores n under key.
func (s *StateDB) PutUint64(key []byte, n uint64) {
	s.PutUint256(key, uint256.NewInt(n))
}

// GetAddress returns the address under key, the zero address when absent.
func (s *StateDB) GetAddress(key []byte) (common.Address, error) {
	data, err := s.Get(key)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(data), nil
}

// PutAddress stores addr under key; the zero address clears the key.
func (s *StateDB) PutAddress(key []byte, addr common.Address) {
	if addr == (common.Address{}) {
		s.Delete(key)
		return
	}
	s.Put(key, addr.Bytes())
}

// GetString returns the string under key.
func (s *StateDB) GetString(key []byte) (string, error) {
	data, err := s.Get(key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
