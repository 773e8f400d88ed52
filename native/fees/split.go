package fees

import (
	"fmt"

	"github.com/holiman/uint256"

	mmerrors "maplemarket/core/errors"
)

// MaxBps is the denominator of a basis-point rate: 10000 bps is 100%.
const MaxBps = 10_000

var maxBps = uint256.NewInt(MaxBps)

// Result is the division of a gross amount between the fee recipient and the
// payee.
type Result struct {
	Gross *uint256.Int
	Fee   *uint256.Int
	Net   *uint256.Int
}

// ValidateBps rejects rates above 100%.
func ValidateBps(bps uint64) error {
	if bps > MaxBps {
		return fmt.Errorf("%w: %d bps exceeds %d", mmerrors.ErrInvalidFee, bps, MaxBps)
	}
	return nil
}

// Split computes fee = gross*bps/10000, truncating, and net = gross-fee. The
// truncated remainder stays with the payee. The multiplication is carried out
// in 512 bits so no gross amount can overflow.
func Split(gross *uint256.Int, bps uint64) (Result, error) {
	if err := ValidateBps(bps); err != nil {
		return Result{}, err
	}
	if gross == nil {
		gross = new(uint256.Int)
	}
	fee, overflow := new(uint256.Int).MulDivOverflow(gross, uint256.NewInt(bps), maxBps)
	if overflow {
		return Result{}, fmt.Errorf("fees: split overflow")
	}
	return Result{
		Gross: gross.Clone(),
		Fee:   fee,
		Net:   new(uint256.Int).Sub(gross, fee),
	}, nil
}
