// Package settlement implements transfer-and-call: a transfer is committed
// first, the receiver is notified outside the invocation, and a second
// invocation refunds whatever the receiver reports as unused.
//
// The two phases share no stored state. Everything phase two needs travels in
// the Continuation handed from phase one to the dispatcher.
package settlement

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/ledger"
	"github.com/daoledger/daoledger/internal/state"
)

// Continuation carries a committed phase-one transfer to its resolution.
type Continuation struct {
	ID       uuid.UUID     `json:"id"`
	Sender   string        `json:"sender"`
	Receiver string        `json:"receiver"`
	Amount   amount.Amount `json:"amount"`
	Memo     string        `json:"memo,omitempty"`
	Msg      string        `json:"msg"`
}

// Notice is what the receiver service is told about an incoming transfer.
type Notice struct {
	ID     uuid.UUID     `json:"id"`
	Sender string        `json:"sender_id"`
	Amount amount.Amount `json:"amount"`
	Msg    string        `json:"msg"`
}

// Notice builds the receiver notice for c.
func (c Continuation) Notice() Notice {
	return Notice{ID: c.ID, Sender: c.Sender, Amount: c.Amount, Msg: c.Msg}
}

// Response is the receiver's answer: the raw bytes it returned or the reason
// the call failed.
type Response struct {
	Value  []byte `json:"value,omitempty"`
	Failed bool   `json:"failed,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Failure builds a failed Response.
func Failure(err error) Response {
	r := Response{Failed: true}
	if err != nil {
		r.Reason = err.Error()
	}
	return r
}

// Outcome is the settled result of a transfer-and-call.
type Outcome struct {
	Used     amount.Amount `json:"used"`
	Refunded amount.Amount `json:"refunded"`
}

// Initiate performs phase one: the full transfer from sender to receiver.
// The returned continuation must be dispatched only after the enclosing
// transaction commits.
func Initiate(tx *state.Tx, id uuid.UUID, sender, receiver string, value amount.Amount, memo, msg string) (Continuation, error) {
	if err := ledger.Transfer(tx, sender, receiver, value, memo); err != nil {
		return Continuation{}, err
	}
	return Continuation{
		ID:       id,
		Sender:   sender,
		Receiver: receiver,
		Amount:   value,
		Memo:     memo,
		Msg:      msg,
	}, nil
}

// Unused decodes the amount a receiver declares it did not use. The value must
// be a JSON string holding a decimal; a failed or malformed response, bare
// numbers included, counts as nothing used.
func Unused(c Continuation, resp Response) amount.Amount {
	if resp.Failed {
		return c.Amount
	}
	var text string
	if err := json.Unmarshal(resp.Value, &text); err != nil {
		return c.Amount
	}
	declared, err := amount.Parse(text)
	if err != nil {
		return c.Amount
	}
	return amount.Min(c.Amount, declared)
}

// Resolve performs phase two. The refund is bounded by the unused amount and
// by what the receiver still holds.
func Resolve(tx *state.Tx, c Continuation, resp Response) (Outcome, error) {
	unused := Unused(c, resp)
	refund := amount.Zero
	if !unused.IsZero() {
		if balance := ledger.BalanceOf(tx, c.Receiver); !balance.IsZero() {
			refund = amount.Min(balance, unused)
			if err := ledger.Transfer(tx, c.Receiver, c.Sender, refund, ledger.MemoRefund); err != nil {
				return Outcome{}, err
			}
		}
	}
	used, ok := c.Amount.Sub(refund)
	if !ok {
		return Outcome{}, apperr.New(apperr.CodeSupplyOverflow, "refund exceeds the transferred amount")
	}
	return Outcome{Used: used, Refunded: refund}, nil
}
