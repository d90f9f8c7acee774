package walletadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/klingon-exchange/tradecore/internal/money"
)

// FakeAdapter is an in-memory Adapter for tests and local development. It
// holds no keys; balances are plain maps seeded by the caller.
type FakeAdapter struct {
	mu sync.Mutex

	balances map[string]map[string]money.Money // userID -> network -> balance
	escrow   map[string]escrowEntry            // orderID -> entry

	nextTxHash int
}

type escrowEntry struct {
	fromUser string
	network  string
	amount   money.Money
}

// NewFakeAdapter creates an empty FakeAdapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		balances: make(map[string]map[string]money.Money),
		escrow:   make(map[string]escrowEntry),
	}
}

// SeedBalance sets a user's balance on a network, for test setup.
func (f *FakeAdapter) SeedBalance(userID, network string, amount money.Money) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setBalanceLocked(userID, network, amount)
}

func (f *FakeAdapter) setBalanceLocked(userID, network string, amount money.Money) {
	if f.balances[userID] == nil {
		f.balances[userID] = make(map[string]money.Money)
	}
	f.balances[userID][network] = amount
}

func (f *FakeAdapter) GetBalance(ctx context.Context, userID, network string) (money.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byNetwork, ok := f.balances[userID]
	if !ok {
		return money.Zero, nil
	}
	return byNetwork[network], nil
}

// ValidateAddress accepts any non-empty address; this fake has no chain
// knowledge, so callers that need negative cases should check the address
// against "invalid" explicitly in the test.
func (f *FakeAdapter) ValidateAddress(ctx context.Context, address, network string) (bool, error) {
	if address == "" {
		return false, nil
	}
	return address != "invalid", nil
}

func (f *FakeAdapter) CreateWithdrawal(ctx context.Context, userID, network, address string, amount money.Money) (*Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ok, _ := f.ValidateAddress(ctx, address, network)
	if !ok {
		return nil, ErrInvalidAddress
	}

	balance := f.balances[userID][network]
	if balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}
	remaining, err := balance.Sub(amount)
	if err != nil {
		return nil, err
	}
	f.setBalanceLocked(userID, network, remaining)

	f.nextTxHash++
	return &Withdrawal{TxHash: fmt.Sprintf("fake-tx-%d", f.nextTxHash), Status: WithdrawalBroadcast}, nil
}

func (f *FakeAdapter) TransferEscrow(ctx context.Context, orderID, fromUser string, amount money.Money, network string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	balance := f.balances[fromUser][network]
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	remaining, err := balance.Sub(amount)
	if err != nil {
		return err
	}
	f.setBalanceLocked(fromUser, network, remaining)
	f.escrow[orderID] = escrowEntry{fromUser: fromUser, network: network, amount: amount}
	return nil
}

func (f *FakeAdapter) ReleaseEscrow(ctx context.Context, orderID, toUser string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.escrow[orderID]
	if !ok {
		return fmt.Errorf("walletadapter: no escrow held for order %s", orderID)
	}
	delete(f.escrow, orderID)

	current := f.balances[toUser][entry.network]
	f.setBalanceLocked(toUser, entry.network, current.Add(entry.amount))
	return nil
}

func (f *FakeAdapter) RefundEscrow(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.escrow[orderID]
	if !ok {
		return fmt.Errorf("walletadapter: no escrow held for order %s", orderID)
	}
	delete(f.escrow, orderID)

	current := f.balances[entry.fromUser][entry.network]
	f.setBalanceLocked(entry.fromUser, entry.network, current.Add(entry.amount))
	return nil
}

var _ Adapter = (*FakeAdapter)(nil)
