package engine

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/daoledger/daoledger/internal/access"
	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/governance"
	"github.com/daoledger/daoledger/internal/ledger"
	"github.com/daoledger/daoledger/internal/notification"
	"github.com/daoledger/daoledger/internal/registry"
	"github.com/daoledger/daoledger/internal/settlement"
	"github.com/daoledger/daoledger/internal/state"
)

// Journaled operation names.
const (
	opGenesis         = "genesis"
	opTransfer        = "transfer"
	opTransferCall    = "transfer_call"
	opResolveTransfer = "resolve_transfer"
	opRegisterAccount = "register_account"
	opPurchase        = "purchase"
	opAssignRole      = "assign_role"
	opAddTeamMember   = "add_team_member"
	opRemoveTeam      = "remove_team_member"
	opCreateProposal  = "create_proposal"
	opVote            = "vote"
	opFinalize        = "finalize_proposal"
	opExecute         = "execute_proposal"
	opDividends       = "distribute_dividends"
)

// handler applies one operation to tx. The same handler serves live calls
// and journal replay, so everything it depends on must come from its
// arguments or from state.
type handler func(e *Engine, tx *state.Tx, caller string, seq uint64, raw json.RawMessage) (any, error)

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		opGenesis:         withArgs(applyGenesis),
		opTransfer:        withCaller(withArgs(applyTransfer)),
		opTransferCall:    withCaller(withArgs(applyTransferCall)),
		opResolveTransfer: withArgs(applyResolveTransfer),
		opRegisterAccount: withCaller(withArgs(applyRegisterAccount)),
		opPurchase:        withCaller(withArgs(applyPurchase)),
		opAssignRole:      withCaller(withArgs(applyAssignRole)),
		opAddTeamMember:   withCaller(withArgs(applyAddTeamMember)),
		opRemoveTeam:      withCaller(withArgs(applyRemoveTeamMember)),
		opCreateProposal:  withCaller(withArgs(applyCreateProposal)),
		opVote:            withCaller(withArgs(applyVote)),
		opFinalize:        withCaller(withArgs(applyFinalize)),
		opExecute:         withCaller(withArgs(applyExecute)),
		opDividends:       withCaller(withArgs(applyDividends)),
	}
}

func withArgs[T any](fn func(e *Engine, tx *state.Tx, caller string, seq uint64, args T) (any, error)) handler {
	return func(e *Engine, tx *state.Tx, caller string, seq uint64, raw json.RawMessage) (any, error) {
		var args T
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidArgument, err, "malformed arguments")
		}
		return fn(e, tx, caller, seq, args)
	}
}

func withCaller(h handler) handler {
	return func(e *Engine, tx *state.Tx, caller string, seq uint64, raw json.RawMessage) (any, error) {
		if caller == "" {
			return nil, apperr.New(apperr.CodeUnauthorized, "caller identity is required")
		}
		return h(e, tx, caller, seq, raw)
	}
}

type allocationArgs struct {
	Account string        `json:"account"`
	Role    state.Role    `json:"role"`
	Balance amount.Amount `json:"balance"`
}

type genesisArgs struct {
	Owner       string           `json:"owner"`
	TotalSupply amount.Amount    `json:"total_supply"`
	Allocations []allocationArgs `json:"allocations"`
}

func applyGenesis(_ *Engine, tx *state.Tx, _ string, _ uint64, a genesisArgs) (any, error) {
	pool := a.TotalSupply
	for _, alloc := range a.Allocations {
		var ok bool
		if pool, ok = pool.Sub(alloc.Balance); !ok {
			return nil, apperr.New(apperr.CodeSupplyOverflow, "genesis allocations exceed the total supply")
		}
	}
	if !tx.Initialize(a.TotalSupply, pool) {
		return nil, apperr.New(apperr.CodeInvalidArgument, "ledger is already initialized")
	}

	if err := registry.Register(tx, a.Owner); err != nil {
		return nil, err
	}
	if err := registry.AssignRole(tx, a.Owner, state.RoleCore); err != nil {
		return nil, err
	}
	for _, alloc := range a.Allocations {
		if _, err := registry.EnsureRegistered(tx, alloc.Account); err != nil {
			return nil, err
		}
		if err := ledger.Deposit(tx, alloc.Account, alloc.Balance); err != nil {
			return nil, err
		}
		if alloc.Role != "" && alloc.Role != state.RoleVisitor {
			if err := registry.AssignRole(tx, alloc.Account, alloc.Role); err != nil {
				return nil, err
			}
		}
	}

	tx.Emit(notification.Event{
		Kind:    notification.KindMint,
		Subject: a.Owner,
		Data: map[string]string{
			"amount": a.TotalSupply.String(),
			"memo":   "Initial token supply is minted",
		},
		At: tx.Now(),
	})
	return nil, nil
}

type transferArgs struct {
	Receiver string        `json:"receiver"`
	Amount   amount.Amount `json:"amount"`
	Memo     string        `json:"memo,omitempty"`
}

func applyTransfer(_ *Engine, tx *state.Tx, caller string, _ uint64, a transferArgs) (any, error) {
	return nil, ledger.Transfer(tx, caller, a.Receiver, a.Amount, a.Memo)
}

type transferCallArgs struct {
	ID       uuid.UUID     `json:"id"`
	Receiver string        `json:"receiver"`
	Amount   amount.Amount `json:"amount"`
	Memo     string        `json:"memo,omitempty"`
	Msg      string        `json:"msg"`
}

func applyTransferCall(e *Engine, tx *state.Tx, caller string, seq uint64, a transferCallArgs) (any, error) {
	c, err := settlement.Initiate(tx, a.ID, caller, a.Receiver, a.Amount, a.Memo, a.Msg)
	if err != nil {
		return nil, err
	}
	tx.OnCommit(func() {
		e.pending[c.ID] = pendingTransfer{seq: seq, cont: c}
	})
	return c, nil
}

type resolveArgs struct {
	Continuation settlement.Continuation `json:"continuation"`
	Response     settlement.Response     `json:"response"`
}

func applyResolveTransfer(e *Engine, tx *state.Tx, _ string, _ uint64, a resolveArgs) (any, error) {
	p, ok := e.pending[a.Continuation.ID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "transfer %s is not awaiting resolution", a.Continuation.ID)
	}
	if p.cont != a.Continuation {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "transfer %s does not match the initiated transfer", a.Continuation.ID)
	}
	out, err := settlement.Resolve(tx, p.cont, a.Response)
	if err != nil {
		return nil, err
	}
	tx.OnCommit(func() {
		delete(e.pending, p.cont.ID)
	})
	return out, nil
}

type registerArgs struct {
	Account    string        `json:"account"`
	Deposit    amount.Amount `json:"deposit"`
	MinBalance amount.Amount `json:"min_balance"`
}

func applyRegisterAccount(_ *Engine, tx *state.Tx, _ string, _ uint64, a registerArgs) (any, error) {
	return registry.RegisterWithDeposit(tx, registry.StaticStorage{Min: a.MinBalance}, a.Account, a.Deposit)
}

type purchaseArgs struct {
	Payment amount.Amount `json:"payment"`
	Rate    string        `json:"rate"`
}

func applyPurchase(_ *Engine, tx *state.Tx, caller string, _ uint64, a purchaseArgs) (any, error) {
	if a.Payment.IsZero() {
		return nil, apperr.New(apperr.CodeInvalidArgument, "payment must be positive")
	}
	tokens, err := tokensFor(a.Payment, a.Rate)
	if err != nil {
		return nil, err
	}
	if tokens.IsZero() {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "payment %s buys no tokens", a.Payment)
	}
	pool, ok := tx.TokenPool().Sub(tokens)
	if !ok {
		return nil, apperr.Newf(apperr.CodePoolExhausted, "token pool holds %s, purchase needs %s", tx.TokenPool(), tokens)
	}
	if _, err := registry.EnsureRegistered(tx, caller); err != nil {
		return nil, err
	}
	if err := ledger.Deposit(tx, caller, tokens); err != nil {
		return nil, err
	}
	tx.SetTokenPool(pool)
	registry.PromoteOnPurchase(tx, caller)
	return tokens, nil
}

// tokensFor returns floor(payment * rate).
func tokensFor(payment amount.Amount, rate string) (amount.Amount, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil || r.IsNegative() {
		return amount.Zero, apperr.Newf(apperr.CodeInvalidArgument, "invalid purchase rate %q", rate)
	}
	p, err := decimal.NewFromString(payment.String())
	if err != nil {
		return amount.Zero, apperr.Wrap(apperr.CodeInvalidArgument, err, "invalid payment")
	}
	tokens, err := amount.Parse(p.Mul(r).Floor().String())
	if err != nil {
		return amount.Zero, apperr.Wrap(apperr.CodeBalanceOverflow, err, "purchase exceeds the 128-bit range")
	}
	return tokens, nil
}

type roleArgs struct {
	Account string `json:"account"`
	Role    string `json:"role"`
}

func applyAssignRole(_ *Engine, tx *state.Tx, caller string, _ uint64, a roleArgs) (any, error) {
	if err := access.Authorize(tx, caller, access.OpAssignRole); err != nil {
		return nil, err
	}
	return nil, registry.AssignRole(tx, a.Account, state.Role(a.Role))
}

type accountArgs struct {
	Account string `json:"account"`
}

func applyAddTeamMember(_ *Engine, tx *state.Tx, caller string, _ uint64, a accountArgs) (any, error) {
	if err := access.Authorize(tx, caller, access.OpManageTeam); err != nil {
		return nil, err
	}
	return nil, registry.AddTeamMember(tx, a.Account)
}

func applyRemoveTeamMember(_ *Engine, tx *state.Tx, caller string, _ uint64, a accountArgs) (any, error) {
	if err := access.Authorize(tx, caller, access.OpManageTeam); err != nil {
		return nil, err
	}
	registry.RemoveTeamMember(tx, a.Account)
	return nil, nil
}

func applyCreateProposal(e *Engine, tx *state.Tx, caller string, _ uint64, d governance.Draft) (any, error) {
	p, err := governance.Create(tx, caller, d)
	if err != nil {
		return nil, err
	}
	count := len(tx.ProposalIDs())
	tx.OnCommit(func() { e.metrics.SetProposals(count) })
	return p, nil
}

type voteArgs struct {
	ID      uint64 `json:"id"`
	Support bool   `json:"support"`
}

func applyVote(_ *Engine, tx *state.Tx, caller string, _ uint64, a voteArgs) (any, error) {
	return governance.Vote(tx, caller, a.ID, a.Support)
}

type proposalArgs struct {
	ID uint64 `json:"id"`
}

func applyFinalize(_ *Engine, tx *state.Tx, caller string, _ uint64, a proposalArgs) (any, error) {
	return governance.Finalize(tx, caller, a.ID)
}

type executeArgs struct {
	ID      uint64 `json:"id"`
	Funding string `json:"funding"`
}

func applyExecute(_ *Engine, tx *state.Tx, caller string, _ uint64, a executeArgs) (any, error) {
	return governance.Execute(tx, caller, a.ID, a.Funding)
}

// Payout is one entry of a dividend plan.
type Payout struct {
	Account string        `json:"account"`
	Share   amount.Amount `json:"share"`
}

type dividendArgs struct {
	Pot amount.Amount `json:"pot"`
}

// applyDividends computes balance * pot / total_supply for every known
// account. It announces the plan and moves no funds.
func applyDividends(_ *Engine, tx *state.Tx, caller string, _ uint64, a dividendArgs) (any, error) {
	if err := access.Authorize(tx, caller, access.OpDistributeDividends); err != nil {
		return nil, err
	}
	if a.Pot.IsZero() {
		return nil, apperr.New(apperr.CodeInvalidArgument, "dividend pot must be positive")
	}
	supply := tx.TotalSupply()
	if supply.IsZero() {
		return nil, apperr.New(apperr.CodeInvalidArgument, "no supply in circulation")
	}

	plan := []Payout{}
	for _, id := range tx.Known() {
		share, ok := amount.MulDiv(ledger.BalanceOf(tx, id), a.Pot, supply)
		if !ok {
			return nil, apperr.Newf(apperr.CodeSupplyOverflow, "dividend share for %s overflows", id)
		}
		if share.IsZero() {
			continue
		}
		plan = append(plan, Payout{Account: id, Share: share})
		tx.Emit(notification.Event{
			Kind:    notification.KindDividendPayout,
			Subject: id,
			Data:    map[string]string{"share": share.String(), "pot": a.Pot.String()},
			At:      tx.Now(),
		})
	}
	return plan, nil
}
