package rpc

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/genesis"
	"maplemarket/native/account"
	"maplemarket/native/market"
	"maplemarket/native/token"
)

func parseAddressParam(r *http.Request, name string) (common.Address, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s must be a hex address", name)
	}
	return common.HexToAddress(raw), nil
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	admin, err := s.market.Admin(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	currency, err := s.market.Currency(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fee, err := s.market.TradingFee(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.market.NumOffers(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MarketResponse{
		Address:       s.market.Address(),
		Admin:         admin,
		Currency:      currency,
		TradingFeeBps: fee,
		NumOffers:     n,
		Factory:       s.factory.Address(),
		Items:         s.deployment.Items,
	})
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	var filter *market.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := market.ParseStatus(raw)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, "invalid_params", err.Error())
			return
		}
		filter = &status
	}
	offers, err := s.market.Offers(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]OfferResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, offerResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_params", "offer id must be an unsigned integer")
		return
	}
	offer, err := s.market.Offer(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offerResponse(offer))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressParam(r, "owner")
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	ctx := r.Context()
	resp := AccountResponse{Owner: owner, Whitelist: []common.Address{}}
	resp.HasAccount, err = s.factory.HasAccount(ctx, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.HasAccount {
		wallet, err := s.factory.Accounts(ctx, owner)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		members, err := account.NewWalletClient(s.host, wallet).Whitelist(ctx)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Wallet = &wallet
		resp.Whitelist = append(resp.Whitelist, members...)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddressParam(r, "holder")
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	if strings.EqualFold(strings.TrimSpace(chi.URLParam(r, "token")), genesis.NativeSymbol) {
		balance, err := s.host.NativeBalance(holder)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, BalanceResponse{Token: genesis.NativeSymbol, Holder: holder, Balance: balance.Dec()})
		return
	}

	addr, err := parseAddressParam(r, "token")
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	kind, err := s.host.KindOf(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if kind != token.Kind {
		s.writeError(w, r, fmt.Errorf("%w: %s is not a token", mmerrors.ErrNoContract, addr.Hex()))
		return
	}
	client := token.NewClient(s.host, addr)
	meta, err := client.Metadata(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := client.BalanceOf(r.Context(), holder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		Token:   addr.Hex(),
		Symbol:  meta.Symbol,
		Holder:  holder,
		Balance: balance.Dec(),
	})
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddressParam(r, "addr")
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	nonce, err := s.host.Nonce(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NonceResponse{Address: addr, Nonce: nonce})
}
