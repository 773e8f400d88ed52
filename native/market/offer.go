package market

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/state"
)

// Status is the lifecycle state of an offer.
type Status uint8

const (
	StatusActive Status = iota
	StatusCancelled
	StatusSold
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCancelled:
		return "cancelled"
	case StatusSold:
		return "sold"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseStatus accepts the names returned by String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "active":
		return StatusActive, nil
	case "cancelled":
		return StatusCancelled, nil
	case "sold":
		return StatusSold, nil
	}
	return 0, fmt.Errorf("market: unknown status %q", s)
}

// Offer is an escrowed listing. Offers are never deleted; terminal ones are
// kept in place.
type Offer struct {
	ID          uint64
	Creator     common.Address
	Item        common.Address
	Amount      *uint256.Int
	CostInJewel *uint256.Int
	Status      Status
	// Bidder is set when the offer is sold.
	Bidder common.Address
}

// Active reports whether the offer can still be traded.
func (o *Offer) Active() bool { return o != nil && o.Status == StatusActive }

// Clone returns a deep copy.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Amount != nil {
		clone.Amount = o.Amount.Clone()
	}
	if o.CostInJewel != nil {
		clone.CostInJewel = o.CostInJewel.Clone()
	}
	return &clone
}

// storedOffer is the persisted form. The id is the key.
type storedOffer struct {
	Creator common.Address
	Item    common.Address
	Amount  *uint256.Int
	Cost    *uint256.Int
	Status  uint8
	Bidder  common.Address
}

var prefix = []byte("market")

func adminKey(m common.Address) []byte    { return state.Key(prefix, m.Bytes(), []byte("admin")) }
func currencyKey(m common.Address) []byte { return state.Key(prefix, m.Bytes(), []byte("currency")) }
func feeKey(m common.Address) []byte      { return state.Key(prefix, m.Bytes(), []byte("fee")) }
func countKey(m common.Address) []byte    { return state.Key(prefix, m.Bytes(), []byte("count")) }

func offerKey(m common.Address, id uint64) []byte {
	return state.Key(prefix, m.Bytes(), []byte("offer"), state.Uint64Key(id))
}

func custodyKey(m, item common.Address) []byte {
	return state.Key(prefix, m.Bytes(), []byte("custody"), item.Bytes())
}

// offerStore is the dense, append-only offer table of one marketplace.
type offerStore struct {
	st   *state.StateDB
	self common.Address
}

func (s offerStore) count() (uint64, error) {
	return s.st.GetUint64(countKey(s.self))
}

func (s offerStore) get(id uint64) (*Offer, error) {
	n, err := s.count()
	if err != nil {
		return nil, err
	}
	if id >= n {
		return nil, fmt.Errorf("%w: %d", mmerrors.ErrOfferNotFound, id)
	}
	var rec storedOffer
	ok, err := s.st.GetRLP(offerKey(s.self, id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("market: offer %d missing from table", id)
	}
	return &Offer{
		ID:          id,
		Creator:     rec.Creator,
		Item:        rec.Item,
		Amount:      rec.Amount,
		CostInJewel: rec.Cost,
		Status:      Status(rec.Status),
		Bidder:      rec.Bidder,
	}, nil
}

func (s offerStore) put(o *Offer) error {
	return s.st.PutRLP(offerKey(s.self, o.ID), &storedOffer{
		Creator: o.Creator,
		Item:    o.Item,
		Amount:  o.Amount,
		Cost:    o.CostInJewel,
		Status:  uint8(o.Status),
		Bidder:  o.Bidder,
	})
}

// append assigns the next id to o and stores it.
func (s offerStore) append(o *Offer) error {
	n, err := s.count()
	if err != nil {
		return err
	}
	o.ID = n
	if err := s.put(o); err != nil {
		return err
	}
	s.st.PutUint64(countKey(s.self), n+1)
	return nil
}

func (s offerStore) custody(item common.Address) (*uint256.Int, error) {
	return s.st.GetUint256(custodyKey(s.self, item))
}

func (s offerStore) adjustCustody(item common.Address, delta *uint256.Int, add bool) error {
	held, err := s.custody(item)
	if err != nil {
		return err
	}
	if add {
		next, overflow := new(uint256.Int).AddOverflow(held, delta)
		if overflow {
			return fmt.Errorf("market: custody overflow for %s", item.Hex())
		}
		s.st.PutUint256(custodyKey(s.self, item), next)
		return nil
	}
	if held.Lt(delta) {
		return fmt.Errorf("market: custody underflow for %s", item.Hex())
	}
	s.st.PutUint256(custodyKey(s.self, item), new(uint256.Int).Sub(held, delta))
	return nil
}
