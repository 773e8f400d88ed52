package errors

import stderrors "errors"

// Account errors.
var (
	ErrAlreadyExists  = stderrors.New("account: already exists")
	ErrNotWhitelisted = stderrors.New("account: target not whitelisted")
	ErrNotOwner       = stderrors.New("account: caller is not the owner")
)

// Market errors.
var (
	ErrNotCreator     = stderrors.New("market: caller is not the offer creator")
	ErrOfferNotActive = stderrors.New("market: offer not active")
	ErrOfferNotFound  = stderrors.New("market: offer not found")
	ErrInvalidCost    = stderrors.New("market: cost must be positive")
	ErrInvalidAmount  = stderrors.New("market: amount must be positive")
	ErrInvalidFee     = stderrors.New("market: fee bps out of range")
	ErrNotAdmin       = stderrors.New("market: caller is not the admin")
	ErrTransferFailed = stderrors.New("market: transfer failed")
	ErrModulePaused   = stderrors.New("market: module paused")
)

// Token errors.
var (
	ErrInsufficientBalance   = stderrors.New("token: insufficient balance")
	ErrInsufficientAllowance = stderrors.New("token: insufficient allowance")
	ErrZeroAddress           = stderrors.New("token: zero address")
	ErrMintDisabled          = stderrors.New("token: minting disabled")
)

// Execution errors.
var (
	ErrUnknownMethod     = stderrors.New("vm: unknown method")
	ErrNoContract        = stderrors.New("vm: no contract at address")
	ErrCallDepthExceeded = stderrors.New("vm: call depth exceeded")
	ErrInvalidNonce      = stderrors.New("vm: invalid nonce")
	ErrInvalidSignature  = stderrors.New("vm: invalid signature")
	ErrNotPayable        = stderrors.New("vm: method is not payable")
	ErrInsufficientValue = stderrors.New("vm: insufficient native balance")
)
