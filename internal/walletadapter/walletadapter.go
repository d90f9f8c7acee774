// Package walletadapter defines the contract the core consumes for balance
// and fund-movement operations. Key management and signing live entirely
// outside this module; an Adapter is a black-box external collaborator.
package walletadapter

import (
	"context"
	"errors"

	"github.com/klingon-exchange/tradecore/internal/money"
)

// Errors an Adapter implementation maps its failures onto.
var (
	ErrInsufficientBalance = errors.New("walletadapter: insufficient balance")
	ErrInvalidAddress      = errors.New("walletadapter: invalid address")
	ErrUnknownUser         = errors.New("walletadapter: unknown user")
)

// WithdrawalStatus is the lifecycle state of a requested withdrawal.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalBroadcast WithdrawalStatus = "BROADCAST"
	WithdrawalFailed    WithdrawalStatus = "FAILED"
)

// Withdrawal is the result of a CreateWithdrawal call.
type Withdrawal struct {
	TxHash string
	Status WithdrawalStatus
}

// Adapter is the signer black box every engine talks to for balance
// reads and fund movement; no private key material crosses this boundary.
type Adapter interface {
	GetBalance(ctx context.Context, userID, network string) (money.Money, error)
	ValidateAddress(ctx context.Context, address, network string) (bool, error)
	CreateWithdrawal(ctx context.Context, userID, network, address string, amount money.Money) (*Withdrawal, error)

	TransferEscrow(ctx context.Context, orderID, fromUser string, amount money.Money, network string) error
	ReleaseEscrow(ctx context.Context, orderID, toUser string) error
	RefundEscrow(ctx context.Context, orderID string) error
}
