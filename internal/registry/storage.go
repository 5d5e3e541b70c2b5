package registry

import (
	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/state"
)

// StorageAccountant reports the deposit an account must reserve to pay for
// its own storage footprint.
type StorageAccountant interface {
	MinBalance() amount.Amount
}

// StaticStorage is a StorageAccountant with a fixed minimum.
type StaticStorage struct {
	Min amount.Amount
}

// MinBalance implements StorageAccountant.
func (s StaticStorage) MinBalance() amount.Amount { return s.Min }

// RegisterWithDeposit registers account against an attached storage deposit
// and returns the part of the deposit to hand back. An account that is
// already registered gets the whole deposit back.
func RegisterWithDeposit(tx *state.Tx, storage StorageAccountant, account string, deposit amount.Amount) (amount.Amount, error) {
	if err := ValidateID(account); err != nil {
		return amount.Zero, err
	}
	if tx.Registered(account) {
		return deposit, nil
	}
	minBalance := storage.MinBalance()
	if deposit.LessThan(minBalance) {
		return amount.Zero, apperr.Newf(apperr.CodeStorageDepositTooLow,
			"attached deposit %s is below the storage minimum %s", deposit, minBalance)
	}
	if err := Register(tx, account); err != nil {
		return amount.Zero, err
	}
	refund, _ := deposit.Sub(minBalance)
	return refund, nil
}
