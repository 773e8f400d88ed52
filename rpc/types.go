package rpc

import (
	"github.com/ethereum/go-ethereum/common"

	"maplemarket/core/types"
	"maplemarket/native/market"
)

// MarketResponse describes the deployed marketplace.
type MarketResponse struct {
	Address       common.Address            `json:"address"`
	Admin         common.Address            `json:"admin"`
	Currency      common.Address            `json:"currency"`
	TradingFeeBps uint64                    `json:"tradingFeeBps"`
	NumOffers     uint64                    `json:"numOffers"`
	Factory       common.Address            `json:"factory"`
	Items         map[string]common.Address `json:"items"`
}

// OfferResponse is the JSON form of an offer. Amounts are decimal strings.
type OfferResponse struct {
	ID          uint64          `json:"id"`
	Creator     common.Address  `json:"creator"`
	Item        common.Address  `json:"item"`
	Amount      string          `json:"amount"`
	CostInJewel string          `json:"costInJewel"`
	Status      string          `json:"status"`
	Bidder      *common.Address `json:"bidder,omitempty"`
}

func offerResponse(o *market.Offer) OfferResponse {
	resp := OfferResponse{
		ID:          o.ID,
		Creator:     o.Creator,
		Item:        o.Item,
		Amount:      o.Amount.Dec(),
		CostInJewel: o.CostInJewel.Dec(),
		Status:      o.Status.String(),
	}
	if o.Bidder != (common.Address{}) {
		bidder := o.Bidder
		resp.Bidder = &bidder
	}
	return resp
}

// AccountResponse reports an owner's wallet.
type AccountResponse struct {
	Owner      common.Address   `json:"owner"`
	HasAccount bool             `json:"hasAccount"`
	Wallet     *common.Address  `json:"wallet,omitempty"`
	Whitelist  []common.Address `json:"whitelist"`
}

// BalanceResponse reports one holder's balance of a token, or of the native
// value ledger when Token is "native".
type BalanceResponse struct {
	Token   string         `json:"token"`
	Symbol  string         `json:"symbol,omitempty"`
	Holder  common.Address `json:"holder"`
	Balance string         `json:"balance"`
}

// NonceResponse reports the next nonce of an address.
type NonceResponse struct {
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
}

// TransactionResponse acknowledges a committed transaction.
type TransactionResponse struct {
	Hash    common.Hash    `json:"hash"`
	Receipt *types.Receipt `json:"receipt"`
}
