package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/holiman/uint256"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/types"
	"maplemarket/core/vm"
)

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx types.Transaction
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_params", "invalid transaction format: "+err.Error())
		return
	}
	if tx.ChainID != s.chainID {
		writeProblem(w, r, http.StatusBadRequest, "wrong_chain",
			fmt.Sprintf("transaction chainId %d does not match %d", tx.ChainID, s.chainID))
		return
	}
	from, err := tx.Sender()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", mmerrors.ErrInvalidSignature, err))
		return
	}
	value := new(uint256.Int)
	if tx.Value != nil {
		if tx.Value.Sign() < 0 {
			writeProblem(w, r, http.StatusBadRequest, "invalid_params", "value must not be negative")
			return
		}
		var overflow bool
		if value, overflow = uint256.FromBig(tx.Value); overflow {
			writeProblem(w, r, http.StatusBadRequest, "invalid_params", "value exceeds 256 bits")
			return
		}
	}
	hash, err := tx.Hash()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	nonce := tx.Nonce
	receipt, err := s.host.Transact(r.Context(), vm.Message{
		From:  from,
		To:    tx.To,
		Value: value,
		Data:  tx.Data,
		Nonce: &nonce,
	})
	if err != nil {
		s.logger.Info("transaction rejected",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("hash", hash.Hex()),
			slog.String("from", from.Hex()),
			slog.String("code", mmerrors.Code(err)))
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransactionResponse{Hash: hash, Receipt: receipt})
}
