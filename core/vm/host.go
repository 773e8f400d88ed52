package vm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/events"
	"maplemarket/core/state"
	"maplemarket/core/types"
	"maplemarket/storage"
)

// DefaultMaxCallDepth bounds nested calls.
const DefaultMaxCallDepth = 64

var (
	codePrefix   = []byte("vm/code")
	noncePrefix  = []byte("vm/nonce")
	nativePrefix = []byte("vm/native")
)

func codeKey(addr common.Address) []byte   { return state.Key(codePrefix, addr.Bytes()) }
func nonceKey(addr common.Address) []byte  { return state.Key(noncePrefix, addr.Bytes()) }
func nativeKey(addr common.Address) []byte { return state.Key(nativePrefix, addr.Bytes()) }

// Contract is the code bound to a deployed address. Implementations keep no
// state of their own: everything lives in the StateDB reachable through the
// Context, so a failed call can be rolled back wholesale.
type Contract interface {
	Run(ctx *Context, input []byte) ([]byte, error)
}

// MethodNamer is implemented by contracts that can name the method selected
// by calldata. The host uses it to label logs, spans and metrics.
type MethodNamer interface {
	MethodName(input []byte) string
}

// Factory builds the contract instance bound to addr.
type Factory func(addr common.Address) Contract

// Observer receives the outcome of every top-level transaction.
type Observer interface {
	TransactionCommitted(method string, elapsed time.Duration)
	TransactionReverted(method string, err error, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) TransactionCommitted(string, time.Duration)        {}
func (noopObserver) TransactionReverted(string, error, time.Duration) {}

// Message describes a top-level call into the ledger.
type Message struct {
	From  common.Address
	To    common.Address
	Value *uint256.Int
	Data  []byte
	// Nonce, when set, must equal the sender's next nonce.
	Nonce *uint64
}

// Host is the ledger execution environment. It serializes every transaction
// behind a single mutex and gives each one all-or-nothing semantics: either
// the whole write set is committed in one database batch and its events are
// emitted, or nothing is.
type Host struct {
	mu       sync.Mutex
	state    *state.StateDB
	kinds    map[string]Factory
	emitter  events.Emitter
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
	maxDepth int

	pending []*types.Event
}

// Option customises a Host.
type Option func(*Host)

// WithEmitter sets the sink for committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(h *Host) {
		if emitter != nil {
			h.emitter = emitter
		}
	}
}

// WithObserver sets the transaction outcome observer.
func WithObserver(observer Observer) Option {
	return func(h *Host) {
		if observer != nil {
			h.observer = observer
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxCallDepth overrides DefaultMaxCallDepth.
func WithMaxCallDepth(depth int) Option {
	return func(h *Host) {
		if depth > 0 {
			h.maxDepth = depth
		}
	}
}

// NewHost creates a host over db.
func NewHost(db storage.Database, opts ...Option) *Host {
	h := &Host{
		state:    state.New(db),
		kinds:    make(map[string]Factory),
		emitter:  events.NoopEmitter{},
		observer: noopObserver{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("maplemarket/core/vm"),
		maxDepth: DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register binds a contract kind to its factory. Kinds are persisted per
// address, so the same registrations must be made every time a node starts.
func (h *Host) Register(kind string, factory Factory) error {
	if kind == "" || factory == nil {
		return fmt.Errorf("vm: kind and factory required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.kinds[kind]; exists {
		return fmt.Errorf("vm: kind %q already registered", kind)
	}
	h.kinds[kind] = factory
	return nil
}

// Transact executes msg as one atomic transaction.
func (h *Host) Transact(ctx context.Context, msg Message) (*types.Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	method := h.methodName(msg.To, msg.Data)
	return h.execute(ctx, "vm.transact", msg.From, msg.To, method, msg.Nonce, func(root *Context) ([]byte, error) {
		return h.call(root, msg.From, msg.To, msg.Data, msg.Value, 0)
	})
}

// Genesis runs fn as a privileged transaction from deployer. Only genesis
// frames may mint native value.
func (h *Host) Genesis(ctx context.Context, deployer common.Address, fn func(*Context) error) (*types.Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.execute(ctx, "vm.genesis", deployer, common.Address{}, "genesis", nil, func(root *Context) ([]byte, error) {
		root.genesis = true
		return nil, fn(root)
	})
}

// StaticCall runs msg and discards every effect.
func (h *Host) StaticCall(ctx context.Context, msg Message) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer func() {
		h.state.Discard()
		h.pending = nil
	}()
	root := &Context{ctx: ctx, host: h, Origin: msg.From, Self: msg.From}
	return h.call(root, msg.From, msg.To, msg.Data, msg.Value, 0)
}

func (h *Host) execute(ctx context.Context, spanName string, from, to common.Address, method string, nonce *uint64, run func(*Context) ([]byte, error)) (*types.Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := h.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("vm.from", from.Hex()),
		attribute.String("vm.to", to.Hex()),
		attribute.String("vm.method", method),
	))
	defer span.End()
	started := time.Now()

	fail := func(err error) (*types.Receipt, error) {
		h.state.Discard()
		h.pending = nil
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.observer.TransactionReverted(method, err, time.Since(started))
		h.logger.Info("transaction reverted",
			slog.String("from", from.Hex()),
			slog.String("to", to.Hex()),
			slog.String("method", method),
			slog.Any("error", err))
		return nil, err
	}

	current, err := h.state.GetUint64(nonceKey(from))
	if err != nil {
		return fail(err)
	}
	if nonce != nil && *nonce != current {
		return fail(fmt.Errorf("%w: have %d, want %d", mmerrors.ErrInvalidNonce, *nonce, current))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	root := &Context{ctx: ctx, host: h, Origin: from, Self: from}
	out, err := run(root)
	if err != nil {
		return fail(err)
	}
	// Deployments made by the sender inside the frame may already have
	// advanced its nonce; the transaction counts on top of that.
	after, err := h.state.GetUint64(nonceKey(from))
	if err != nil {
		return fail(err)
	}
	h.state.PutUint64(nonceKey(from), after+1)

	commitRoot, err := h.state.Commit()
	if err != nil {
		return fail(err)
	}
	logs := h.pending
	h.pending = nil
	for _, evt := range logs {
		h.emitter.Emit(evt)
	}
	h.observer.TransactionCommitted(method, time.Since(started))
	h.logger.Debug("transaction committed",
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.String("method", method),
		slog.Int("events", len(logs)),
		slog.String("root", commitRoot.Hex()))
	return &types.Receipt{
		From:   from,
		To:     to,
		Nonce:  current,
		Return: out,
		Events: logs,
		Root:   commitRoot,
	}, nil
}

func (h *Host) call(parent *Context, from, to common.Address, input []byte, value *uint256.Int, depth int) ([]byte, error) {
	if depth >= h.maxDepth {
		return nil, mmerrors.ErrCallDepthExceeded
	}
	if value == nil {
		value = new(uint256.Int)
	}
	snap := h.state.Snapshot()
	logs := len(h.pending)
	revert := func(err error) ([]byte, error) {
		h.state.RevertToSnapshot(snap)
		h.pending = h.pending[:logs]
		return nil, err
	}

	if err := h.moveNative(from, to, value); err != nil {
		return revert(err)
	}
	kind, err := h.state.GetString(codeKey(to))
	if err != nil {
		return revert(err)
	}
	if kind == "" {
		// Plain value transfer to an externally owned address.
		if len(input) == 0 {
			return nil, nil
		}
		return revert(fmt.Errorf("%w: %s", mmerrors.ErrNoContract, to.Hex()))
	}
	factory, ok := h.kinds[kind]
	if !ok {
		return revert(fmt.Errorf("vm: kind %q not registered", kind))
	}
	frame := &Context{
		ctx:     parent.ctx,
		host:    h,
		Origin:  parent.Origin,
		Caller:  from,
		Self:    to,
		Value:   value.Clone(),
		depth:   depth + 1,
		genesis: parent.genesis,
	}
	out, err := factory(to).Run(frame, input)
	if err != nil {
		return revert(err)
	}
	return out, nil
}

func (h *Host) deploy(parent *Context, kind string, value *uint256.Int, init func(*Context) error) (common.Address, error) {
	if parent.depth >= h.maxDepth {
		return common.Address{}, mmerrors.ErrCallDepthExceeded
	}
	if _, ok := h.kinds[kind]; !ok {
		return common.Address{}, fmt.Errorf("vm: kind %q not registered", kind)
	}
	if value == nil {
		value = new(uint256.Int)
	}
	snap := h.state.Snapshot()
	logs := len(h.pending)
	revert := func(err error) (common.Address, error) {
		h.state.RevertToSnapshot(snap)
		h.pending = h.pending[:logs]
		return common.Address{}, err
	}

	nonce, err := h.state.GetUint64(nonceKey(parent.Self))
	if err != nil {
		return revert(err)
	}
	addr := crypto.CreateAddress(parent.Self, nonce)
	h.state.PutUint64(nonceKey(parent.Self), nonce+1)
	existing, err := h.state.GetString(codeKey(addr))
	if err != nil {
		return revert(err)
	}
	if existing != "" {
		return revert(fmt.Errorf("vm: address collision at %s", addr.Hex()))
	}
	h.state.Put(codeKey(addr), []byte(kind))
	if err := h.moveNative(parent.Self, addr, value); err != nil {
		return revert(err)
	}
	if init != nil {
		frame := &Context{
			ctx:     parent.ctx,
			host:    h,
			Origin:  parent.Origin,
			Caller:  parent.Self,
			Self:    addr,
			Value:   value.Clone(),
			depth:   parent.depth + 1,
			genesis: parent.genesis,
		}
		if err := init(frame); err != nil {
			return revert(err)
		}
	}
	return addr, nil
}

func (h *Host) moveNative(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	balance, err := h.state.GetUint256(nativeKey(from))
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", mmerrors.ErrInsufficientValue, from.Hex(), balance.Dec(), amount.Dec())
	}
	credit, err := h.state.GetUint256(nativeKey(to))
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(credit, amount)
	if overflow {
		return fmt.Errorf("vm: native balance overflow")
	}
	h.state.PutUint256(nativeKey(from), new(uint256.Int).Sub(balance, amount))
	h.state.PutUint256(nativeKey(to), sum)
	return nil
}

func (h *Host) methodName(to common.Address, input []byte) string {
	if len(input) == 0 {
		return "transfer"
	}
	kind, err := h.state.GetString(codeKey(to))
	if err != nil || kind == "" {
		return "unknown"
	}
	factory, ok := h.kinds[kind]
	if !ok {
		return "unknown"
	}
	if namer, ok := factory(to).(MethodNamer); ok {
		if name := namer.MethodName(input); name != "" {
			return kind + "." + name
		}
	}
	return kind + ".unknown"
}

// Nonce returns the next nonce of addr.
func (h *Host) Nonce(addr common.Address) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.GetUint64(nonceKey(addr))
}

// NativeBalance returns the committed native balance of addr.
func (h *Host) NativeBalance(addr common.Address) (*uint256.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.GetUint256(nativeKey(addr))
}

// KindOf returns the contract kind deployed at addr, or "" for plain
// addresses.
func (h *Host) KindOf(addr common.Address) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.GetString(codeKey(addr))
}
