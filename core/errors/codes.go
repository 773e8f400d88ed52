package errors

import stderrors "errors"

// CodeUnknown labels errors outside the taxonomy.
const CodeUnknown = "internal"

// codes is ordered so that wrapping errors are matched before the causes
// they carry: a failed settlement reports transfer_failed rather than the
// token error underneath.
var codes = []struct {
	err  error
	code string
}{
	{ErrTransferFailed, "transfer_failed"},
	{ErrModulePaused, "module_paused"},
	{ErrAlreadyExists, "already_exists"},
	{ErrNotWhitelisted, "not_whitelisted"},
	{ErrNotOwner, "not_owner"},
	{ErrNotCreator, "not_creator"},
	{ErrNotAdmin, "not_admin"},
	{ErrOfferNotActive, "offer_not_active"},
	{ErrOfferNotFound, "offer_not_found"},
	{ErrInvalidCost, "invalid_cost"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidFee, "invalid_fee"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInsufficientAllowance, "insufficient_allowance"},
	{ErrZeroAddress, "zero_address"},
	{ErrMintDisabled, "mint_disabled"},
	{ErrUnknownMethod, "unknown_method"},
	{ErrNoContract, "no_contract"},
	{ErrCallDepthExceeded, "call_depth_exceeded"},
	{ErrInvalidNonce, "invalid_nonce"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrNotPayable, "not_payable"},
	{ErrInsufficientValue, "insufficient_value"},
}

// Code returns a stable snake_case identifier for err, suitable for metric
// labels and API responses.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if stderrors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
