package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/governance"
	"github.com/daoledger/daoledger/internal/ledger"
	"github.com/daoledger/daoledger/internal/settlement"
	"github.com/daoledger/daoledger/internal/state"
)

// AccountBalance pairs an account with its balance.
type AccountBalance struct {
	Account string        `json:"account"`
	Balance amount.Amount `json:"balance"`
}

// AccountRole pairs an account with its role.
type AccountRole struct {
	Account string     `json:"account"`
	Role    state.Role `json:"role"`
}

// Supply summarizes the ledger totals.
type Supply struct {
	Total       amount.Amount `json:"total_supply"`
	TokenPool   amount.Amount `json:"token_pool"`
	Circulating amount.Amount `json:"circulating"`
}

func (e *Engine) runGenesis(ctx context.Context) error {
	args := genesisArgs{Owner: e.genesis.Owner, TotalSupply: e.genesis.TotalSupply}
	for _, a := range e.genesis.Allocations {
		args.Allocations = append(args.Allocations, allocationArgs{Account: a.Account, Role: a.Role, Balance: a.Balance})
	}
	_, err := e.invoke(ctx, opGenesis, "", args)
	return err
}

// Transfer moves value from caller to receiver.
func (e *Engine) Transfer(ctx context.Context, caller, receiver string, value amount.Amount, memo string) error {
	_, err := e.invoke(ctx, opTransfer, caller, transferArgs{Receiver: receiver, Amount: value, Memo: memo})
	return err
}

// TransferCall transfers value to receiver and notifies the receiver's
// service with msg. The returned ticket settles once the unused part has been
// refunded.
func (e *Engine) TransferCall(ctx context.Context, caller, receiver string, value amount.Amount, memo, msg string) (*settlement.Ticket, error) {
	res, err := e.invoke(ctx, opTransferCall, caller, transferCallArgs{
		ID:       uuid.New(),
		Receiver: receiver,
		Amount:   value,
		Memo:     memo,
		Msg:      msg,
	})
	if err != nil {
		return nil, err
	}
	c := res.(settlement.Continuation)
	return e.dispatcher.Enqueue(c, nil), nil
}

// ResolveTransfer settles an initiated transfer with the receiver's response.
// It implements settlement.Resolver.
func (e *Engine) ResolveTransfer(ctx context.Context, c settlement.Continuation, resp settlement.Response) (settlement.Outcome, error) {
	res, err := e.invoke(ctx, opResolveTransfer, "", resolveArgs{Continuation: c, Response: resp})
	if err != nil {
		return settlement.Outcome{}, err
	}
	return res.(settlement.Outcome), nil
}

// RegisterAccount registers account against a storage deposit paid by caller
// and returns the refundable part of the deposit.
func (e *Engine) RegisterAccount(ctx context.Context, caller, account string, deposit amount.Amount) (amount.Amount, error) {
	res, err := e.invoke(ctx, opRegisterAccount, caller, registerArgs{
		Account:    account,
		Deposit:    deposit,
		MinBalance: e.storage.MinBalance(),
	})
	if err != nil {
		return amount.Zero, err
	}
	return res.(amount.Amount), nil
}

// Purchase sells tokens from the pool to caller at the configured rate and
// returns the number of tokens credited.
func (e *Engine) Purchase(ctx context.Context, caller string, payment amount.Amount) (amount.Amount, error) {
	res, err := e.invoke(ctx, opPurchase, caller, purchaseArgs{Payment: payment, Rate: e.genesis.PurchaseRate.String()})
	if err != nil {
		return amount.Zero, err
	}
	return res.(amount.Amount), nil
}

// AssignRole grants role to account. Only core callers may do this.
func (e *Engine) AssignRole(ctx context.Context, caller, account, role string) error {
	_, err := e.invoke(ctx, opAssignRole, caller, roleArgs{Account: account, Role: role})
	return err
}

// AddTeamMember adds account to the team roster with the core role.
func (e *Engine) AddTeamMember(ctx context.Context, caller, account string) error {
	_, err := e.invoke(ctx, opAddTeamMember, caller, accountArgs{Account: account})
	return err
}

// RemoveTeamMember drops account from the team roster.
func (e *Engine) RemoveTeamMember(ctx context.Context, caller, account string) error {
	_, err := e.invoke(ctx, opRemoveTeam, caller, accountArgs{Account: account})
	return err
}

// CreateProposal opens a proposal authored by caller.
func (e *Engine) CreateProposal(ctx context.Context, caller string, d governance.Draft) (state.Proposal, error) {
	return proposalResult(e.invoke(ctx, opCreateProposal, caller, d))
}

// Vote casts caller's balance-weighted vote.
func (e *Engine) Vote(ctx context.Context, caller string, id uint64, support bool) (state.Proposal, error) {
	return proposalResult(e.invoke(ctx, opVote, caller, voteArgs{ID: id, Support: support}))
}

// Finalize closes voting on a proposal.
func (e *Engine) Finalize(ctx context.Context, caller string, id uint64) (state.Proposal, error) {
	return proposalResult(e.invoke(ctx, opFinalize, caller, proposalArgs{ID: id}))
}

// Execute pays out an accepted proposal from the funding account.
func (e *Engine) Execute(ctx context.Context, caller string, id uint64) (state.Proposal, error) {
	return proposalResult(e.invoke(ctx, opExecute, caller, executeArgs{ID: id, Funding: e.genesis.FundingAccount}))
}

func proposalResult(res any, err error) (state.Proposal, error) {
	if err != nil {
		return state.Proposal{}, err
	}
	return res.(state.Proposal), nil
}

// Dividends announces a payout plan that splits pot in proportion to balances.
func (e *Engine) Dividends(ctx context.Context, caller string, pot amount.Amount) ([]Payout, error) {
	res, err := e.invoke(ctx, opDividends, caller, dividendArgs{Pot: pot})
	if err != nil {
		return nil, err
	}
	return res.([]Payout), nil
}

// BalanceOf returns the balance of account, zero if it is not registered.
func (e *Engine) BalanceOf(account string) (b amount.Amount) {
	e.view(func(tx *state.Tx) { b = ledger.BalanceOf(tx, account) })
	return b
}

// Registered reports whether account has a balance entry.
func (e *Engine) Registered(account string) (ok bool) {
	e.view(func(tx *state.Tx) { ok = tx.Registered(account) })
	return ok
}

// TotalSupply returns the fixed supply minted at genesis.
func (e *Engine) TotalSupply() (s amount.Amount) {
	e.view(func(tx *state.Tx) { s = tx.TotalSupply() })
	return s
}

// Supply returns the ledger totals.
func (e *Engine) Supply() (s Supply, err error) {
	e.view(func(tx *state.Tx) {
		s.Total = tx.TotalSupply()
		s.TokenPool = tx.TokenPool()
		s.Circulating, err = ledger.Circulating(tx)
	})
	return s, err
}

// Balances lists every known account with its balance.
func (e *Engine) Balances() (out []AccountBalance) {
	e.view(func(tx *state.Tx) {
		known := tx.Known()
		out = make([]AccountBalance, 0, len(known))
		for _, id := range known {
			out = append(out, AccountBalance{Account: id, Balance: ledger.BalanceOf(tx, id)})
		}
	})
	return out
}

// RoleOf returns the role recorded for account.
func (e *Engine) RoleOf(account string) (r state.Role, ok bool) {
	e.view(func(tx *state.Tx) { r, ok = tx.Role(account) })
	return r, ok
}

// Roles lists the role of every known account that has one.
func (e *Engine) Roles() (out []AccountRole) {
	e.view(func(tx *state.Tx) {
		out = []AccountRole{}
		for _, id := range tx.Known() {
			if r, ok := tx.Role(id); ok {
				out = append(out, AccountRole{Account: id, Role: r})
			}
		}
	})
	return out
}

// TeamMembers returns the team roster.
func (e *Engine) TeamMembers() (out []string) {
	e.view(func(tx *state.Tx) { out = tx.Team() })
	if out == nil {
		out = []string{}
	}
	return out
}

// Proposal returns proposal id.
func (e *Engine) Proposal(id uint64) (p state.Proposal, err error) {
	e.view(func(tx *state.Tx) { p, err = governance.Get(tx, id) })
	return p, err
}

// Proposals lists every proposal in creation order.
func (e *Engine) Proposals() (out []state.Proposal) {
	e.view(func(tx *state.Tx) { out = governance.List(tx) })
	return out
}

// PendingTransfers returns the number of transfers awaiting resolution.
func (e *Engine) PendingTransfers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pending)
}
