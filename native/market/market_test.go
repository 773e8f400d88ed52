package market

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/vm"
	"maplemarket/native/account"
	nativecommon "maplemarket/native/common"
	"maplemarket/native/token"
	"maplemarket/storage"
)

const feeBps = 250

var (
	deployer = common.HexToAddress("0xd0")
	admin    = common.HexToAddress("0xad")
	seller   = common.HexToAddress("0x5e")
	buyer    = common.HexToAddress("0xb0")
)

func jewel(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type harness struct {
	host    *vm.Host
	pauses  *nativecommon.Pauses
	market  *Client
	jewel   *token.Client
	item    *token.Client
	factory *account.FactoryClient
	wallet  *account.WalletClient
}

func register(t *testing.T, host *vm.Host, pauses nativecommon.PauseView) {
	t.Helper()
	require.NoError(t, token.Register(host))
	require.NoError(t, account.Register(host))
	require.NoError(t, Register(host, pauses))
}

func newHarnessOn(t *testing.T, db storage.Database) *harness {
	t.Helper()
	ctx := context.Background()
	pauses := nativecommon.NewPauses()
	host := vm.NewHost(db)
	register(t, host, pauses)

	var jewelAddr, itemAddr, factoryAddr, marketAddr common.Address
	_, err := host.Genesis(ctx, deployer, func(ctx *vm.Context) error {
		var err error
		if jewelAddr, err = ctx.Deploy(token.Kind, nil, token.Init(token.Metadata{Name: "Jewel", Symbol: "JEWEL", Decimals: 18, Mintable: true})); err != nil {
			return err
		}
		if itemAddr, err = ctx.Deploy(token.Kind, nil, token.Init(token.Metadata{Name: "Item", Symbol: "ITEM", Mintable: true})); err != nil {
			return err
		}
		if factoryAddr, err = ctx.Deploy(account.FactoryKind, nil, nil); err != nil {
			return err
		}
		marketAddr, err = ctx.Deploy(Kind, nil, Init(Config{Admin: admin, Currency: jewelAddr, FeeBps: feeBps}))
		return err
	})
	require.NoError(t, err)

	h := &harness{
		host:    host,
		pauses:  pauses,
		market:  NewClient(host, marketAddr),
		jewel:   token.NewClient(host, jewelAddr),
		item:    token.NewClient(host, itemAddr),
		factory: account.NewFactoryClient(host, factoryAddr),
	}

	// Seller: wallet whitelisting the market, holding ten items.
	walletAddr, _, err := h.factory.CreateAccount(ctx, seller, []common.Address{marketAddr}, nil)
	require.NoError(t, err)
	h.wallet = account.NewWalletClient(host, walletAddr)
	_, err = h.item.Mint(ctx, seller, uint256.NewInt(10))
	require.NoError(t, err)
	_, err = h.item.Transfer(ctx, seller, walletAddr, uint256.NewInt(10))
	require.NoError(t, err)

	// Buyer: 300 JEWEL held directly.
	_, err = h.jewel.Mint(ctx, buyer, jewel(300))
	require.NoError(t, err)
	return h
}

func newHarness(t *testing.T) *harness {
	return newHarnessOn(t, storage.NewMemDB())
}

// list approves the market through the wallet and creates an offer with it.
func (h *harness) list(t *testing.T, amount uint64, cost *uint256.Int) uint64 {
	t.Helper()
	ctx := context.Background()
	_, err := h.wallet.Approve(ctx, seller, h.item.Address(), h.market.Address(), uint256.NewInt(amount))
	require.NoError(t, err)
	out, _, err := h.wallet.Execute(ctx, seller, h.market.Address(), CreateOfferCalldata(h.item.Address(), uint256.NewInt(amount), cost), nil)
	require.NoError(t, err)
	id, err := DecodeOfferID(out)
	require.NoError(t, err)
	return id
}

func (h *harness) execute(t *testing.T, payload []byte) error {
	t.Helper()
	_, _, err := h.wallet.Execute(context.Background(), seller, h.market.Address(), payload, nil)
	return err
}

func (h *harness) balance(t *testing.T, c *token.Client, owner common.Address) *uint256.Int {
	t.Helper()
	bal, err := c.BalanceOf(context.Background(), owner)
	require.NoError(t, err)
	return bal
}

func (h *harness) offer(t *testing.T, id uint64) *Offer {
	t.Helper()
	o, err := h.market.Offer(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (h *harness) custody(t *testing.T) uint64 {
	t.Helper()
	held, err := h.market.Custody(context.Background(), h.item.Address())
	require.NoError(t, err)
	return held.Uint64()
}

func TestCreateOffer(t *testing.T) {
	h := newHarness(t)
	id := h.list(t, 10, jewel(100))
	require.Zero(t, id)

	n, err := h.market.NumOffers(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	o := h.offer(t, 0)
	require.Equal(t, h.wallet.Address(), o.Creator)
	require.Equal(t, h.item.Address(), o.Item)
	require.Equal(t, uint64(10), o.Amount.Uint64())
	require.True(t, o.CostInJewel.Eq(jewel(100)))
	require.Equal(t, StatusActive, o.Status)
	require.Equal(t, common.Address{}, o.Bidder)

	require.Zero(t, h.balance(t, h.item, h.wallet.Address()).Uint64())
	require.Equal(t, uint64(10), h.balance(t, h.item, h.market.Address()).Uint64())
	require.Equal(t, uint64(10), h.custody(t))
}

func TestCreateOfferValidation(t *testing.T) {
	h := newHarness(t)
	item := h.item.Address()

	err := h.execute(t, CreateOfferCalldata(item, uint256.NewInt(0), jewel(1)))
	require.ErrorIs(t, err, mmerrors.ErrInvalidAmount)
	err = h.execute(t, CreateOfferCalldata(item, uint256.NewInt(1), uint256.NewInt(0)))
	require.ErrorIs(t, err, mmerrors.ErrInvalidCost)

	// No allowance granted yet.
	err = h.execute(t, CreateOfferCalldata(item, uint256.NewInt(1), jewel(1)))
	require.ErrorIs(t, err, mmerrors.ErrTransferFailed)

	_, err = h.wallet.Approve(context.Background(), seller, item, h.market.Address(), uint256.NewInt(50))
	require.NoError(t, err)
	err = h.execute(t, CreateOfferCalldata(item, uint256.NewInt(11), jewel(1)))
	require.ErrorIs(t, err, mmerrors.ErrTransferFailed)
	require.ErrorIs(t, err, mmerrors.ErrInsufficientBalance)

	n, err := h.market.NumOffers(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, h.custody(t))
	require.Equal(t, uint64(10), h.balance(t, h.item, h.wallet.Address()).Uint64())
}

func TestCancelOffer(t *testing.T) {
	h := newHarness(t)
	id := h.list(t, 10, jewel(100))

	_, err := h.market.CancelOffer(context.Background(), buyer, id)
	require.ErrorIs(t, err, mmerrors.ErrNotCreator)

	require.NoError(t, h.execute(t, CancelOfferCalldata(id)))
	require.Equal(t, StatusCancelled, h.offer(t, id).Status)
	require.Equal(t, uint64(10), h.balance(t, h.item, h.wallet.Address()).Uint64())
	require.Zero(t, h.balance(t, h.item, h.market.Address()).Uint64())
	require.Zero(t, h.custody(t))

	err = h.execute(t, CancelOfferCalldata(id))
	require.ErrorIs(t, err, mmerrors.ErrOfferNotActive)
	require.Equal(t, uint64(10), h.balance(t, h.item, h.wallet.Address()).Uint64())
}

func TestChangeOfferCost(t *testing.T) {
	h := newHarness(t)
	id := h.list(t, 10, jewel(100))

	require.NoError(t, h.execute(t, ChangeOfferCostCalldata(id, jewel(200))))
	o := h.offer(t, id)
	require.Equal(t, StatusActive, o.Status)
	require.True(t, o.CostInJewel.Eq(jewel(200)))
	require.Equal(t, uint64(10), o.Amount.Uint64())
	require.Equal(t, uint64(10), h.custody(t))

	require.ErrorIs(t, h.execute(t, ChangeOfferCostCalldata(id, uint256.NewInt(0))), mmerrors.ErrInvalidCost)
	_, err := h.market.ChangeOfferCost(context.Background(), buyer, id, jewel(1))
	require.ErrorIs(t, err, mmerrors.ErrNotCreator)

	require.NoError(t, h.execute(t, CancelOfferCalldata(id)))
	require.ErrorIs(t, h.execute(t, ChangeOfferCostCalldata(id, jewel(50))), mmerrors.ErrOfferNotActive)
	require.True(t, h.offer(t, id).CostInJewel.Eq(jewel(200)))
}

// TestListCancelRelistAndSell walks the reference flow: ten items at 100
// JEWEL, cancelled, relisted and bought by a buyer holding 300 JEWEL.
func TestListCancelRelistAndSell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.list(t, 10, jewel(100))
	require.NoError(t, h.execute(t, CancelOfferCalldata(first)))
	require.Equal(t, uint64(10), h.balance(t, h.item, h.wallet.Address()).Uint64())
	require.Zero(t, h.custody(t))

	id := h.list(t, 10, jewel(100))
	require.Equal(t, uint64(1), id)

	_, err := h.jewel.Approve(ctx, buyer, h.market.Address(), jewel(100))
	require.NoError(t, err)
	receipt, err := h.market.Bid(ctx, buyer, id)
	require.NoError(t, err)

	fee, err := h.market.TradingFee(ctx)
	require.NoError(t, err)
	expectedFee := new(uint256.Int).Div(new(uint256.Int).Mul(jewel(100), uint256.NewInt(fee)), uint256.NewInt(10_000))

	o := h.offer(t, id)
	require.Equal(t, StatusSold, o.Status)
	require.Equal(t, buyer, o.Bidder)
	require.Equal(t, uint64(10), h.balance(t, h.item, buyer).Uint64())
	require.Zero(t, h.balance(t, h.item, h.wallet.Address()).Uint64())
	require.Zero(t, h.custody(t))
	require.True(t, h.balance(t, h.jewel, buyer).Eq(jewel(200)))
	require.True(t, h.balance(t, h.jewel, admin).Eq(expectedFee))
	require.True(t, h.balance(t, h.jewel, h.wallet.Address()).Eq(new(uint256.Int).Sub(jewel(100), expectedFee)))
	require.Zero(t, h.balance(t, h.jewel, h.market.Address()).Uint64())

	var sold bool
	for _, evt := range receipt.Events {
		if evt.Type == EventTypeOfferSold {
			sold = true
			require.Equal(t, expectedFee.Dec(), evt.Attributes["fee"])
			require.Equal(t, buyer.Hex(), evt.Attributes["bidder"])
		}
	}
	require.True(t, sold)
}

func TestSecondBidFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, 10, jewel(100))
	_, err := h.jewel.Approve(ctx, buyer, h.market.Address(), jewel(300))
	require.NoError(t, err)

	_, err = h.market.Bid(ctx, buyer, id)
	require.NoError(t, err)
	_, err = h.market.Bid(ctx, buyer, id)
	require.ErrorIs(t, err, mmerrors.ErrOfferNotActive)

	require.True(t, h.balance(t, h.jewel, buyer).Eq(jewel(200)))
	require.Equal(t, uint64(10), h.balance(t, h.item, buyer).Uint64())
	require.ErrorIs(t, h.execute(t, CancelOfferCalldata(id)), mmerrors.ErrOfferNotActive)
}

func TestFailedBidChangesNothing(t *testing.T) {
	cases := []struct {
		name    string
		approve *uint256.Int
		cost    *uint256.Int
		cause   error
	}{
		{name: "allowance short of cost", approve: jewel(99), cost: jewel(100), cause: mmerrors.ErrInsufficientAllowance},
		{name: "balance short of cost", approve: jewel(400), cost: jewel(301), cause: mmerrors.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			id := h.list(t, 10, tc.cost)
			_, err := h.jewel.Approve(ctx, buyer, h.market.Address(), tc.approve)
			require.NoError(t, err)

			_, err = h.market.Bid(ctx, buyer, id)
			require.ErrorIs(t, err, mmerrors.ErrTransferFailed)
			require.ErrorIs(t, err, tc.cause)

			o := h.offer(t, id)
			require.Equal(t, StatusActive, o.Status)
			require.Equal(t, common.Address{}, o.Bidder)
			require.True(t, h.balance(t, h.jewel, buyer).Eq(jewel(300)))
			require.Zero(t, h.balance(t, h.jewel, admin).Uint64())
			require.Zero(t, h.balance(t, h.jewel, h.wallet.Address()).Uint64())
			require.Zero(t, h.balance(t, h.item, buyer).Uint64())
			require.Equal(t, uint64(10), h.custody(t))
			allowance, err := h.jewel.Allowance(ctx, buyer, h.market.Address())
			require.NoError(t, err)
			require.True(t, allowance.Eq(tc.approve))
		})
	}
}

func TestFeeChangeOnlyAffectsLaterBids(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wallet.Approve(ctx, seller, h.item.Address(), h.market.Address(), uint256.NewInt(10))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.NoError(t, h.execute(t, CreateOfferCalldata(h.item.Address(), uint256.NewInt(5), jewel(100))))
	}
	_, err = h.jewel.Approve(ctx, buyer, h.market.Address(), jewel(200))
	require.NoError(t, err)

	_, err = h.market.Bid(ctx, buyer, 0)
	require.NoError(t, err)
	require.True(t, h.balance(t, h.jewel, admin).Eq(jewel(100).Div(jewel(100), uint256.NewInt(40))))

	_, err = h.market.SetTradingFee(ctx, buyer, 1_000)
	require.ErrorIs(t, err, mmerrors.ErrNotAdmin)
	_, err = h.market.SetTradingFee(ctx, admin, 10_001)
	require.ErrorIs(t, err, mmerrors.ErrInvalidFee)
	_, err = h.market.SetTradingFee(ctx, admin, 1_000)
	require.NoError(t, err)
	fee, err := h.market.TradingFee(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), fee)

	_, err = h.market.Bid(ctx, buyer, 1)
	require.NoError(t, err)
	// 2.5 JEWEL from the first sale plus 10 JEWEL from the second.
	want := new(uint256.Int).Mul(uint256.NewInt(125), uint256.NewInt(100_000_000_000_000_000))
	require.True(t, h.balance(t, h.jewel, admin).Eq(want))
	require.True(t, h.balance(t, h.jewel, h.wallet.Address()).Eq(new(uint256.Int).Sub(jewel(200), want)))
}

func TestOfferNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.market.Offer(context.Background(), 0)
	require.ErrorIs(t, err, mmerrors.ErrOfferNotFound)
	_, err = h.market.Bid(context.Background(), buyer, 7)
	require.ErrorIs(t, err, mmerrors.ErrOfferNotFound)
}

func TestCustodyTracksActiveOffers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.wallet.Approve(ctx, seller, h.item.Address(), h.market.Address(), uint256.NewInt(10))
	require.NoError(t, err)
	for _, amount := range []uint64{2, 3, 5} {
		require.NoError(t, h.execute(t, CreateOfferCalldata(h.item.Address(), uint256.NewInt(amount), jewel(1))))
	}
	require.NoError(t, h.execute(t, CancelOfferCalldata(1)))
	_, err = h.jewel.Approve(ctx, buyer, h.market.Address(), jewel(1))
	require.NoError(t, err)
	_, err = h.market.Bid(ctx, buyer, 2)
	require.NoError(t, err)

	active := StatusActive
	offers, err := h.market.Offers(ctx, &active)
	require.NoError(t, err)
	sum := new(uint256.Int)
	for _, o := range offers {
		sum.Add(sum, o.Amount)
	}
	require.Equal(t, uint64(2), sum.Uint64())
	require.Equal(t, sum.Uint64(), h.custody(t))
	require.Equal(t, sum.Uint64(), h.balance(t, h.item, h.market.Address()).Uint64())

	all, err := h.market.Offers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, o := range all {
		require.Equal(t, uint64(i), o.ID)
	}
}

func TestPausedMarketRejectsMutations(t *testing.T) {
	h := newHarness(t)
	id := h.list(t, 10, jewel(100))
	h.pauses.Set(Module, true)

	require.ErrorIs(t, h.execute(t, CancelOfferCalldata(id)), mmerrors.ErrModulePaused)
	_, err := h.market.Bid(context.Background(), buyer, id)
	require.ErrorIs(t, err, mmerrors.ErrModulePaused)
	require.Equal(t, StatusActive, h.offer(t, id).Status)

	h.pauses.Set(Module, false)
	require.NoError(t, h.execute(t, CancelOfferCalldata(id)))
}

func TestPlanSettlement(t *testing.T) {
	self := common.HexToAddress("0x3a")
	currency := common.HexToAddress("0xc0")
	o := &Offer{ID: 4, Creator: seller, Item: common.HexToAddress("0x17"), Amount: uint256.NewInt(3), CostInJewel: uint256.NewInt(1_999), Status: StatusActive}

	plan, err := PlanSettlement(o, self, buyer, admin, currency, 500)
	require.NoError(t, err)
	require.Len(t, plan.Legs, 4)
	require.Equal(t, []LegKind{LegPull, LegFee, LegPayout, LegDelivery},
		[]LegKind{plan.Legs[0].Kind, plan.Legs[1].Kind, plan.Legs[2].Kind, plan.Legs[3].Kind})
	require.Equal(t, uint64(1_999), plan.Legs[0].Amount.Uint64())
	require.Equal(t, buyer, plan.Legs[0].From)
	require.Equal(t, uint64(99), plan.Legs[1].Amount.Uint64())
	require.Equal(t, admin, plan.Legs[1].To)
	require.Equal(t, uint64(1_900), plan.Legs[2].Amount.Uint64())
	require.Equal(t, seller, plan.Legs[2].To)
	require.Equal(t, o.Item, plan.Legs[3].Asset)
	require.Equal(t, buyer, plan.Legs[3].To)

	_, err = PlanSettlement(o, self, buyer, admin, currency, 10_001)
	require.ErrorIs(t, err, mmerrors.ErrInvalidFee)
}

func TestOffersSurviveRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	h := newHarnessOn(t, db)
	id := h.list(t, 10, jewel(100))
	marketAddr, itemAddr, walletAddr := h.market.Address(), h.item.Address(), h.wallet.Address()
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	host := vm.NewHost(reopened)
	register(t, host, nativecommon.NewPauses())

	o, err := NewClient(host, marketAddr).Offer(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, walletAddr, o.Creator)
	require.Equal(t, StatusActive, o.Status)
	owner, err := account.NewWalletClient(host, walletAddr).Owner(context.Background())
	require.NoError(t, err)
	require.Equal(t, seller, owner)
	held, err := token.NewClient(host, itemAddr).BalanceOf(context.Background(), marketAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), held.Uint64())
}
