package ledger

import (
	"testing"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/notification"
	"github.com/daoledger/daoledger/internal/state"
)

func seeded(t *testing.T, balances map[string]amount.Amount) *state.Store {
	t.Helper()
	s := state.NewStore()
	tx := s.Begin()
	for id, b := range balances {
		tx.SetBalance(id, b)
		tx.AddKnown(id)
	}
	tx.Commit()
	return s
}

func TestTransferMaintainsBalance(t *testing.T) {
	s := seeded(t, map[string]amount.Amount{"wallet.a": amount.New(10_000), "wallet.b": amount.Zero})
	tx := s.Begin()

	if err := Transfer(tx, "wallet.a", "wallet.b", amount.New(1_500), "rent"); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	fx := tx.Commit()

	view := s.Begin()
	if got := BalanceOf(view, "wallet.a"); got != amount.New(8_500) {
		t.Fatalf("expected from balance 8500, got %s", got)
	}
	if got := BalanceOf(view, "wallet.b"); got != amount.New(1_500) {
		t.Fatalf("expected to balance 1500, got %s", got)
	}
	total, err := Circulating(view)
	if err != nil || total != amount.New(10_000) {
		t.Fatalf("ledger not balanced, total=%s err=%v", total, err)
	}
	if len(fx.Events) != 1 || fx.Events[0].Kind != notification.KindTransfer || fx.Events[0].Data["memo"] != "rent" {
		t.Fatalf("expected one ft_transfer event, got %+v", fx.Events)
	}
}

func TestTransferRejectsSelfAndZero(t *testing.T) {
	s := seeded(t, map[string]amount.Amount{"wallet.a": amount.New(100), "wallet.b": amount.Zero})
	tx := s.Begin()

	if err := Transfer(tx, "wallet.a", "wallet.a", amount.New(10), ""); !apperr.IsCode(err, apperr.CodeInvalidTransfer) {
		t.Fatalf("expected invalid transfer for self transfer, got %v", err)
	}
	if err := Transfer(tx, "wallet.a", "wallet.b", amount.Zero, ""); !apperr.IsCode(err, apperr.CodeInvalidTransfer) {
		t.Fatalf("expected invalid transfer for zero amount, got %v", err)
	}
	if got := BalanceOf(tx, "wallet.a"); got != amount.New(100) {
		t.Fatalf("balance changed on rejected transfer: %s", got)
	}
}

func TestTransferFailsClosedForUnregistered(t *testing.T) {
	s := seeded(t, map[string]amount.Amount{"wallet.a": amount.New(100)})

	tx := s.Begin()
	err := Transfer(tx, "wallet.a", "ghost", amount.New(10), "")
	if !apperr.IsCode(err, apperr.CodeAccountNotRegistered) {
		t.Fatalf("expected account not registered, got %v", err)
	}
	tx.Rollback()

	view := s.Begin()
	if got := BalanceOf(view, "wallet.a"); got != amount.New(100) {
		t.Fatalf("withdraw leaked past rollback: %s", got)
	}
	if view.Registered("ghost") {
		t.Fatal("unregistered receiver gained a balance entry")
	}
	if got := BalanceOf(view, "ghost"); !got.IsZero() {
		t.Fatalf("expected zero balance for unregistered account, got %s", got)
	}
}

func TestWithdrawInsufficient(t *testing.T) {
	s := seeded(t, map[string]amount.Amount{"wallet.a": amount.New(5)})
	tx := s.Begin()
	if err := Withdraw(tx, "wallet.a", amount.New(6)); !apperr.IsCode(err, apperr.CodeInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestDepositOverflow(t *testing.T) {
	s := seeded(t, map[string]amount.Amount{"wallet.a": amount.Max, "wallet.b": amount.New(1)})
	tx := s.Begin()

	if err := Deposit(tx, "wallet.a", amount.New(1)); !apperr.IsCode(err, apperr.CodeBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := Transfer(tx, "wallet.b", "wallet.a", amount.New(1), ""); !apperr.IsCode(err, apperr.CodeBalanceOverflow) {
		t.Fatalf("expected overflow on transfer, got %v", err)
	}
}
