// Package governance runs the proposal lifecycle: creation, balance-weighted
// voting, finalization and execution of accepted fund movements.
package governance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/daoledger/daoledger/internal/access"
	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/ledger"
	"github.com/daoledger/daoledger/internal/notification"
	"github.com/daoledger/daoledger/internal/registry"
	"github.com/daoledger/daoledger/internal/state"
)

// Draft holds the caller supplied fields of a new proposal.
type Draft struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Link         string         `json:"link,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Category     string         `json:"category,omitempty"`
	Amount       *amount.Amount `json:"amount,omitempty"`
	Target       string         `json:"target,omitempty"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	RequiredRole string         `json:"required_role,omitempty"`
	Quorum       *amount.Amount `json:"quorum,omitempty"`
}

func (d Draft) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return apperr.New(apperr.CodeMissingField, "title is required")
	}
	if d.Target != "" {
		if err := registry.ValidateID(d.Target); err != nil {
			return err
		}
	}
	if d.RequiredRole != "" {
		if _, ok := state.ParseRole(d.RequiredRole); !ok {
			return apperr.Newf(apperr.CodeInvalidRole, "unknown required role %q", d.RequiredRole)
		}
	}
	return nil
}

// Create opens a new proposal authored by proposer.
func Create(tx *state.Tx, proposer string, d Draft) (state.Proposal, error) {
	if err := access.Authorize(tx, proposer, access.OpCreateProposal); err != nil {
		return state.Proposal{}, err
	}
	if err := d.validate(); err != nil {
		return state.Proposal{}, err
	}

	p := state.Proposal{
		ID:           tx.AllocateProposalID(),
		Title:        d.Title,
		Description:  d.Description,
		Link:         d.Link,
		Tags:         append([]string{}, d.Tags...),
		Category:     d.Category,
		Proposer:     proposer,
		CreatedAt:    tx.Now(),
		Status:       state.StatusOpen,
		VotesFor:     []state.Vote{},
		VotesAgainst: []state.Vote{},
		Voters:       []string{},
		Amount:       d.Amount,
		Target:       d.Target,
		Deadline:     d.Deadline,
		RequiredRole: state.Role(d.RequiredRole),
		Quorum:       d.Quorum,
	}
	tx.PutProposal(p)
	emit(tx, notification.KindProposalCreated, p, map[string]string{"proposer": proposer, "title": p.Title})
	return p, nil
}

// Vote records support or opposition from voter, weighted by the voter's
// balance at this moment. Later balance changes do not alter the weight.
func Vote(tx *state.Tx, voter string, id uint64, support bool) (state.Proposal, error) {
	if err := access.Authorize(tx, voter, access.OpVote); err != nil {
		return state.Proposal{}, err
	}
	p, err := Get(tx, id)
	if err != nil {
		return state.Proposal{}, err
	}
	if p.Status != state.StatusOpen {
		return state.Proposal{}, apperr.Newf(apperr.CodeAlreadyFinalized, "proposal %d is already finalized", id)
	}
	if p.HasVoted(voter) {
		return state.Proposal{}, apperr.Newf(apperr.CodeDuplicateVote, "%s has already voted on proposal %d", voter, id)
	}

	vote := state.Vote{Voter: voter, Weight: ledger.BalanceOf(tx, voter)}
	if support {
		p.VotesFor = append(p.VotesFor, vote)
	} else {
		p.VotesAgainst = append(p.VotesAgainst, vote)
	}
	p.Voters = append(p.Voters, voter)
	tx.PutProposal(p)
	emit(tx, notification.KindProposalVoted, p, map[string]string{
		"voter":   voter,
		"support": strconv.FormatBool(support),
		"weight":  vote.Weight.String(),
	})
	return p, nil
}

// Tally sums the recorded vote weights.
func Tally(p state.Proposal) (votesFor, votesAgainst amount.Amount, err error) {
	votesFor, err = sum(p.VotesFor)
	if err != nil {
		return amount.Zero, amount.Zero, err
	}
	votesAgainst, err = sum(p.VotesAgainst)
	if err != nil {
		return amount.Zero, amount.Zero, err
	}
	return votesFor, votesAgainst, nil
}

func sum(votes []state.Vote) (amount.Amount, error) {
	total := amount.Zero
	for _, v := range votes {
		var ok bool
		if total, ok = total.Add(v.Weight); !ok {
			return amount.Zero, apperr.New(apperr.CodeSupplyOverflow, "vote weight total exceeds the 128-bit range")
		}
	}
	return total, nil
}

// Finalize closes voting. The proposal is accepted when the weight in favor
// strictly exceeds the weight against; a tie rejects.
func Finalize(tx *state.Tx, caller string, id uint64) (state.Proposal, error) {
	if err := access.Authorize(tx, caller, access.OpFinalizeProposal); err != nil {
		return state.Proposal{}, err
	}
	p, err := Get(tx, id)
	if err != nil {
		return state.Proposal{}, err
	}
	if p.Status != state.StatusOpen {
		return state.Proposal{}, apperr.Newf(apperr.CodeAlreadyFinalized, "proposal %d is already finalized", id)
	}

	votesFor, votesAgainst, err := Tally(p)
	if err != nil {
		return state.Proposal{}, err
	}
	if votesAgainst.LessThan(votesFor) {
		p.Status = state.StatusAccepted
	} else {
		p.Status = state.StatusRejected
	}
	tx.PutProposal(p)
	emit(tx, notification.KindProposalFinalized, p, map[string]string{
		"status":        string(p.Status),
		"votes_for":     votesFor.String(),
		"votes_against": votesAgainst.String(),
	})
	return p, nil
}

// Execute pays an accepted proposal's amount from the funding account to its
// target, registering the target first if needed. A proposal executes once.
func Execute(tx *state.Tx, caller string, id uint64, funding string) (state.Proposal, error) {
	if err := access.Authorize(tx, caller, access.OpExecuteProposal); err != nil {
		return state.Proposal{}, err
	}
	p, err := Get(tx, id)
	if err != nil {
		return state.Proposal{}, err
	}
	if p.Executed() {
		return state.Proposal{}, apperr.Newf(apperr.CodeAlreadyExecuted, "proposal %d already executed", id)
	}
	if p.Status != state.StatusAccepted {
		return state.Proposal{}, apperr.Newf(apperr.CodeNotAccepted, "proposal %d is %s", id, p.Status)
	}
	if p.Amount == nil {
		return state.Proposal{}, apperr.Newf(apperr.CodeMissingField, "proposal %d has no amount", id)
	}
	if p.Target == "" {
		return state.Proposal{}, apperr.Newf(apperr.CodeMissingField, "proposal %d has no target", id)
	}
	if ledger.BalanceOf(tx, funding).LessThan(*p.Amount) {
		return state.Proposal{}, apperr.Newf(apperr.CodeInsufficientBalance, "funding account %s cannot cover %s", funding, p.Amount)
	}
	if _, err := registry.EnsureRegistered(tx, p.Target); err != nil {
		return state.Proposal{}, err
	}
	if err := ledger.Transfer(tx, funding, p.Target, *p.Amount, fmt.Sprintf("proposal #%d", id)); err != nil {
		return state.Proposal{}, err
	}

	p.Status = state.StatusExecuted
	tx.PutProposal(p)
	emit(tx, notification.KindProposalExecuted, p, map[string]string{
		"target": p.Target,
		"amount": p.Amount.String(),
	})
	return p, nil
}

// Get returns proposal id.
func Get(tx *state.Tx, id uint64) (state.Proposal, error) {
	p, ok := tx.Proposal(id)
	if !ok {
		return state.Proposal{}, apperr.Newf(apperr.CodeProposalNotFound, "proposal %d not found", id)
	}
	return p, nil
}

// List returns every proposal in creation order.
func List(tx *state.Tx) []state.Proposal {
	ids := tx.ProposalIDs()
	out := make([]state.Proposal, 0, len(ids))
	for _, id := range ids {
		if p, ok := tx.Proposal(id); ok {
			out = append(out, p)
		}
	}
	return out
}

func emit(tx *state.Tx, kind string, p state.Proposal, data map[string]string) {
	data["id"] = strconv.FormatUint(p.ID, 10)
	tx.Emit(notification.Event{Kind: kind, Subject: p.Proposer, Data: data, At: tx.Now()})
}
