package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/vm"
	nativecommon "maplemarket/native/common"
	"maplemarket/native/fees"
	"maplemarket/native/token"
)

const (
	// Kind is the contract kind of the marketplace.
	Kind = "market"
	// Module is the name checked against the pause view.
	Module = "market"
)

const (
	EventTypeOfferCreated     = "market.offer.created"
	EventTypeOfferCancelled   = "market.offer.cancelled"
	EventTypeOfferCostChanged = "market.offer.cost_changed"
	EventTypeOfferSold        = "market.offer.sold"
	EventTypeFeeChanged       = "market.fee.changed"
)

// Config is fixed at deployment except for the fee, which the admin may
// change for future bids.
type Config struct {
	Admin    common.Address
	Currency common.Address
	FeeBps   uint64
}

// Validate checks the deployment parameters.
func (c Config) Validate() error {
	if c.Admin == (common.Address{}) {
		return fmt.Errorf("%w: market admin", mmerrors.ErrZeroAddress)
	}
	if c.Currency == (common.Address{}) {
		return fmt.Errorf("%w: market currency", mmerrors.ErrZeroAddress)
	}
	return fees.ValidateBps(c.FeeBps)
}

// mutating lists the methods blocked while the module is paused.
var mutating = map[string]bool{
	"createOffer":     true,
	"cancelOffer":     true,
	"changeOfferCost": true,
	"bid":             true,
	"setTradingFee":   true,
}

var dispatcher = vm.MustDispatcher(ABI)

func init() {
	dispatcher.Handle("numOffers", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		n, err := load(ctx).offers.count()
		if err != nil {
			return nil, err
		}
		return []interface{}{vm.BigOut(uint256.NewInt(n))}, nil
	})
	dispatcher.Handle("offers", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		id, err := offerIDArg(args[0])
		if err != nil {
			return nil, err
		}
		o, err := load(ctx).offers.get(id)
		if err != nil {
			return nil, err
		}
		return []interface{}{o.Creator, o.Item, vm.BigOut(o.Amount), vm.BigOut(o.CostInJewel), uint8(o.Status), o.Bidder}, nil
	})
	dispatcher.Handle("admin", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		admin, err := ctx.State().GetAddress(adminKey(ctx.Self))
		if err != nil {
			return nil, err
		}
		return []interface{}{admin}, nil
	})
	dispatcher.Handle("tradingFee", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		bps, err := ctx.State().GetUint256(feeKey(ctx.Self))
		if err != nil {
			return nil, err
		}
		return []interface{}{vm.BigOut(bps)}, nil
	})
	dispatcher.Handle("currency", func(ctx *vm.Context, _ []interface{}) ([]interface{}, error) {
		currency, err := ctx.State().GetAddress(currencyKey(ctx.Self))
		if err != nil {
			return nil, err
		}
		return []interface{}{currency}, nil
	})
	dispatcher.Handle("custody", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		item, err := vm.AddressArg(args[0])
		if err != nil {
			return nil, err
		}
		held, err := load(ctx).offers.custody(item)
		if err != nil {
			return nil, err
		}
		return []interface{}{vm.BigOut(held)}, nil
	})
	dispatcher.Handle("createOffer", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		item, err := vm.AddressArg(args[0])
		if err != nil {
			return nil, err
		}
		amount, err := vm.Uint256Arg(args[1])
		if err != nil {
			return nil, err
		}
		cost, err := vm.Uint256Arg(args[2])
		if err != nil {
			return nil, err
		}
		id, err := load(ctx).createOffer(item, amount, cost)
		if err != nil {
			return nil, err
		}
		return []interface{}{vm.BigOut(uint256.NewInt(id))}, nil
	})
	dispatcher.Handle("cancelOffer", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		id, err := offerIDArg(args[0])
		if err != nil {
			return nil, err
		}
		return nil, load(ctx).cancelOffer(id)
	})
	dispatcher.Handle("changeOfferCost", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		id, err := offerIDArg(args[0])
		if err != nil {
			return nil, err
		}
		cost, err := vm.Uint256Arg(args[1])
		if err != nil {
			return nil, err
		}
		return nil, load(ctx).changeOfferCost(id, cost)
	})
	dispatcher.Handle("bid", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		id, err := offerIDArg(args[0])
		if err != nil {
			return nil, err
		}
		return nil, load(ctx).bid(id)
	})
	dispatcher.Handle("setTradingFee", func(ctx *vm.Context, args []interface{}) ([]interface{}, error) {
		bps, err := vm.Uint256Arg(args[0])
		if err != nil {
			return nil, err
		}
		if !bps.IsUint64() {
			return nil, fmt.Errorf("%w: %s bps", mmerrors.ErrInvalidFee, bps.Dec())
		}
		return nil, load(ctx).setTradingFee(bps.Uint64())
	})
}

type contract struct {
	pauses nativecommon.PauseView
}

// New returns the host factory for marketplace contracts. State-changing
// methods fail with ErrModulePaused while pauses reports Module as paused.
func New(pauses nativecommon.PauseView) vm.Factory {
	return func(common.Address) vm.Contract { return contract{pauses: pauses} }
}

// Register binds Kind on host.
func Register(host *vm.Host, pauses nativecommon.PauseView) error {
	return host.Register(Kind, New(pauses))
}

func (c contract) Run(ctx *vm.Context, input []byte) ([]byte, error) {
	if mutating[dispatcher.MethodName(input)] {
		if err := nativecommon.Guard(c.pauses, Module); err != nil {
			return nil, err
		}
	}
	return dispatcher.Dispatch(ctx, input)
}

func (contract) MethodName(input []byte) string { return dispatcher.MethodName(input) }

// Init returns the constructor for a marketplace with cfg.
func Init(cfg Config) func(*vm.Context) error {
	return func(ctx *vm.Context) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		st := ctx.State()
		st.PutAddress(adminKey(ctx.Self), cfg.Admin)
		st.PutAddress(currencyKey(ctx.Self), cfg.Currency)
		st.PutUint64(feeKey(ctx.Self), cfg.FeeBps)
		return nil
	}
}

func offerIDArg(arg interface{}) (uint64, error) {
	id, err := vm.Uint256Arg(arg)
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("%w: %s", mmerrors.ErrOfferNotFound, id.Dec())
	}
	return id.Uint64(), nil
}

// engine runs the offer state machine inside one call frame.
type engine struct {
	ctx    *vm.Context
	offers offerStore
}

func load(ctx *vm.Context) *engine {
	return &engine{ctx: ctx, offers: offerStore{st: ctx.State(), self: ctx.Self}}
}

func (e *engine) config() (Config, error) {
	st := e.ctx.State()
	admin, err := st.GetAddress(adminKey(e.ctx.Self))
	if err != nil {
		return Config{}, err
	}
	currency, err := st.GetAddress(currencyKey(e.ctx.Self))
	if err != nil {
		return Config{}, err
	}
	bps, err := st.GetUint64(feeKey(e.ctx.Self))
	if err != nil {
		return Config{}, err
	}
	return Config{Admin: admin, Currency: currency, FeeBps: bps}, nil
}

// activeOffer loads id and checks that it is still tradeable.
func (e *engine) activeOffer(id uint64) (*Offer, error) {
	o, err := e.offers.get(id)
	if err != nil {
		return nil, err
	}
	if !o.Active() {
		return nil, fmt.Errorf("%w: offer %d is %s", mmerrors.ErrOfferNotActive, id, o.Status)
	}
	return o, nil
}

func (e *engine) requireCreator(o *Offer) error {
	if e.ctx.Caller != o.Creator {
		return fmt.Errorf("%w: offer %d", mmerrors.ErrNotCreator, o.ID)
	}
	return nil
}

func (e *engine) createOffer(item common.Address, amount, cost *uint256.Int) (uint64, error) {
	if amount.IsZero() {
		return 0, mmerrors.ErrInvalidAmount
	}
	if cost.IsZero() {
		return 0, mmerrors.ErrInvalidCost
	}
	creator := e.ctx.Caller
	if err := token.TransferFrom(e.ctx, item, creator, e.ctx.Self, amount); err != nil {
		return 0, err
	}
	o := &Offer{
		Creator:     creator,
		Item:        item,
		Amount:      amount.Clone(),
		CostInJewel: cost.Clone(),
		Status:      StatusActive,
	}
	if err := e.offers.append(o); err != nil {
		return 0, err
	}
	if err := e.offers.adjustCustody(item, amount, true); err != nil {
		return 0, err
	}
	e.ctx.Emit(EventTypeOfferCreated, map[string]string{
		"id":          fmt.Sprint(o.ID),
		"creator":     creator.Hex(),
		"item":        item.Hex(),
		"amount":      amount.Dec(),
		"costInJewel": cost.Dec(),
	})
	return o.ID, nil
}

func (e *engine) cancelOffer(id uint64) error {
	o, err := e.offers.get(id)
	if err != nil {
		return err
	}
	if err := e.requireCreator(o); err != nil {
		return err
	}
	if !o.Active() {
		return fmt.Errorf("%w: offer %d is %s", mmerrors.ErrOfferNotActive, id, o.Status)
	}
	o.Status = StatusCancelled
	if err := e.offers.put(o); err != nil {
		return err
	}
	if err := e.offers.adjustCustody(o.Item, o.Amount, false); err != nil {
		return err
	}
	if err := token.Transfer(e.ctx, o.Item, o.Creator, o.Amount); err != nil {
		return err
	}
	e.ctx.Emit(EventTypeOfferCancelled, map[string]string{
		"id":      fmt.Sprint(id),
		"creator": o.Creator.Hex(),
		"item":    o.Item.Hex(),
		"amount":  o.Amount.Dec(),
	})
	return nil
}

func (e *engine) changeOfferCost(id uint64, cost *uint256.Int) error {
	o, err := e.offers.get(id)
	if err != nil {
		return err
	}
	if err := e.requireCreator(o); err != nil {
		return err
	}
	if !o.Active() {
		return fmt.Errorf("%w: offer %d is %s", mmerrors.ErrOfferNotActive, id, o.Status)
	}
	if cost.IsZero() {
		return mmerrors.ErrInvalidCost
	}
	previous := o.CostInJewel
	o.CostInJewel = cost.Clone()
	if err := e.offers.put(o); err != nil {
		return err
	}
	e.ctx.Emit(EventTypeOfferCostChanged, map[string]string{
		"id":           fmt.Sprint(id),
		"previousCost": previous.Dec(),
		"costInJewel":  cost.Dec(),
	})
	return nil
}

// bid sells offer id to the caller. The fee rate is read now, so a fee change
// never affects offers that already settled.
func (e *engine) bid(id uint64) error {
	o, err := e.activeOffer(id)
	if err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	bidder := e.ctx.Caller
	plan, err := PlanSettlement(o, e.ctx.Self, bidder, cfg.Admin, cfg.Currency, cfg.FeeBps)
	if err != nil {
		return err
	}
	if err := plan.execute(e.ctx); err != nil {
		return err
	}
	o.Status = StatusSold
	o.Bidder = bidder
	if err := e.offers.put(o); err != nil {
		return err
	}
	if err := e.offers.adjustCustody(o.Item, o.Amount, false); err != nil {
		return err
	}
	e.ctx.Emit(EventTypeOfferSold, map[string]string{
		"id":          fmt.Sprint(id),
		"creator":     o.Creator.Hex(),
		"bidder":      bidder.Hex(),
		"item":        o.Item.Hex(),
		"amount":      o.Amount.Dec(),
		"costInJewel": o.CostInJewel.Dec(),
		"fee":         plan.Split.Fee.Dec(),
		"feeBps":      fmt.Sprint(cfg.FeeBps),
	})
	return nil
}

func (e *engine) setTradingFee(bps uint64) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if e.ctx.Caller != cfg.Admin {
		return fmt.Errorf("%w: %s", mmerrors.ErrNotAdmin, e.ctx.Caller.Hex())
	}
	if err := fees.ValidateBps(bps); err != nil {
		return err
	}
	e.ctx.State().PutUint64(feeKey(e.ctx.Self), bps)
	e.ctx.Emit(EventTypeFeeChanged, map[string]string{
		"previousBps": fmt.Sprint(cfg.FeeBps),
		"bps":         fmt.Sprint(bps),
	})
	return nil
}
