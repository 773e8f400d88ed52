package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"maplemarket/core/vm"
	"maplemarket/native/fees"
	"maplemarket/native/token"
)

// LegKind names one asset movement of a settlement.
type LegKind uint8

const (
	LegPull LegKind = iota
	LegFee
	LegPayout
	LegDelivery
)

func (k LegKind) String() string {
	switch k {
	case LegPull:
		return "pull"
	case LegFee:
		return "fee"
	case LegPayout:
		return "payout"
	case LegDelivery:
		return "delivery"
	default:
		return fmt.Sprintf("leg(%d)", uint8(k))
	}
}

// Leg moves Amount of Asset from From to To. Legs that start at the
// marketplace are plain transfers out of its balance; the pull leg spends the
// bidder's allowance.
type Leg struct {
	Kind   LegKind
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// Settlement is the full set of movements for selling one offer, computed
// before any asset moves.
type Settlement struct {
	OfferID uint64
	Bidder  common.Address
	Split   fees.Result
	Legs    []Leg
}

// PlanSettlement computes the legs for bidder buying o from the marketplace
// at self. It has no side effects.
func PlanSettlement(o *Offer, self, bidder, admin, currency common.Address, feeBps uint64) (*Settlement, error) {
	split, err := fees.Split(o.CostInJewel, feeBps)
	if err != nil {
		return nil, err
	}
	return &Settlement{
		OfferID: o.ID,
		Bidder:  bidder,
		Split:   split,
		Legs: []Leg{
			{Kind: LegPull, Asset: currency, From: bidder, To: self, Amount: split.Gross},
			{Kind: LegFee, Asset: currency, From: self, To: admin, Amount: split.Fee},
			{Kind: LegPayout, Asset: currency, From: self, To: o.Creator, Amount: split.Net},
			{Kind: LegDelivery, Asset: o.Item, From: self, To: bidder, Amount: o.Amount.Clone()},
		},
	}, nil
}

// execute performs the legs in order. Zero legs are skipped. The first
// failure is returned wrapped in ErrTransferFailed by the token adapter; the
// caller's frame is then reverted so no leg survives.
func (s *Settlement) execute(ctx *vm.Context) error {
	for _, leg := range s.Legs {
		if leg.Amount == nil || leg.Amount.IsZero() {
			continue
		}
		var err error
		if leg.Kind == LegPull {
			err = token.TransferFrom(ctx, leg.Asset, leg.From, leg.To, leg.Amount)
		} else {
			err = token.Transfer(ctx, leg.Asset, leg.To, leg.Amount)
		}
		if err != nil {
			return fmt.Errorf("market: settle offer %d %s leg: %w", s.OfferID, leg.Kind, err)
		}
	}
	return nil
}
