// Package ledger moves units between registered accounts. Every operation runs
// inside the caller's state.Tx, so a failure anywhere in an invocation undoes
// all of its postings.
package ledger

import (
	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/notification"
	"github.com/daoledger/daoledger/internal/state"
)

// MemoRefund annotates the reverse transfer of a settlement.
const MemoRefund = "Refund"

// Deposit credits account. The account must be registered and the new balance
// must fit in 128 bits.
func Deposit(tx *state.Tx, account string, value amount.Amount) error {
	balance, ok := tx.Balance(account)
	if !ok {
		return apperr.Newf(apperr.CodeAccountNotRegistered, "account %s is not registered", account)
	}
	next, ok := balance.Add(value)
	if !ok {
		return apperr.Newf(apperr.CodeBalanceOverflow, "balance of %s would exceed the 128-bit range", account)
	}
	tx.SetBalance(account, next)
	tx.AddKnown(account)
	return nil
}

// Withdraw debits account.
func Withdraw(tx *state.Tx, account string, value amount.Amount) error {
	balance, ok := tx.Balance(account)
	if !ok {
		return apperr.Newf(apperr.CodeAccountNotRegistered, "account %s is not registered", account)
	}
	next, ok := balance.Sub(value)
	if !ok {
		return apperr.Newf(apperr.CodeInsufficientBalance, "account %s holds %s, needs %s", account, balance, value)
	}
	tx.SetBalance(account, next)
	return nil
}

// Transfer moves value from sender to receiver and emits an ft_transfer
// event. Self transfers and zero amounts are rejected.
func Transfer(tx *state.Tx, sender, receiver string, value amount.Amount, memo string) error {
	if sender == receiver {
		return apperr.New(apperr.CodeInvalidTransfer, "sender and receiver must differ")
	}
	if value.IsZero() {
		return apperr.New(apperr.CodeInvalidTransfer, "transfer amount must be positive")
	}
	if err := Withdraw(tx, sender, value); err != nil {
		return err
	}
	if err := Deposit(tx, receiver, value); err != nil {
		return err
	}

	data := map[string]string{"receiver": receiver, "amount": value.String()}
	if memo != "" {
		data["memo"] = memo
	}
	tx.Emit(notification.Event{
		Kind:    notification.KindTransfer,
		Subject: sender,
		Data:    data,
		At:      tx.Now(),
	})
	return nil
}

// BalanceOf returns the balance of account, zero when it is not registered.
func BalanceOf(tx *state.Tx, account string) amount.Amount {
	balance, _ := tx.Balance(account)
	return balance
}

// Circulating sums every registered balance. The result is checked against
// the 128-bit bound.
func Circulating(tx *state.Tx) (amount.Amount, error) {
	total := amount.Zero
	for _, id := range tx.Known() {
		var ok bool
		total, ok = total.Add(BalanceOf(tx, id))
		if !ok {
			return amount.Zero, apperr.New(apperr.CodeSupplyOverflow, "circulating balances exceed the 128-bit range")
		}
	}
	return total, nil
}
