package state

import (
	"time"

	"github.com/daoledger/daoledger/internal/amount"
)

// Role classifies a caller for access control.
type Role string

const (
	RoleCore      Role = "core"
	RoleFinance   Role = "finance"
	RoleCommunity Role = "community"
	RoleVisitor   Role = "visitor"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleCore, RoleFinance, RoleCommunity, RoleVisitor:
		return r, true
	}
	return "", false
}

// ProposalStatus is the lifecycle state of a proposal.
//
//	open -> accepted | rejected
//	accepted -> executed
type ProposalStatus string

const (
	StatusOpen     ProposalStatus = "open"
	StatusAccepted ProposalStatus = "accepted"
	StatusRejected ProposalStatus = "rejected"
	StatusExecuted ProposalStatus = "executed"
)

// Vote is a voter and the balance they held when the vote was cast.
type Vote struct {
	Voter  string        `json:"voter"`
	Weight amount.Amount `json:"weight"`
}

// Proposal is a governance action subject to a balance-weighted vote.
type Proposal struct {
	ID           uint64         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Link         string         `json:"link,omitempty"`
	Tags         []string       `json:"tags"`
	Category     string         `json:"category,omitempty"`
	Proposer     string         `json:"proposer"`
	CreatedAt    time.Time      `json:"created_at"`
	Status       ProposalStatus `json:"status"`
	VotesFor     []Vote         `json:"votes_for"`
	VotesAgainst []Vote         `json:"votes_against"`
	Voters       []string       `json:"voters"`
	Amount       *amount.Amount `json:"amount,omitempty"`
	Target       string         `json:"target,omitempty"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	RequiredRole Role           `json:"required_role,omitempty"`
	Quorum       *amount.Amount `json:"quorum,omitempty"`
}

// Executed reports whether the proposal's fund movement has been performed.
func (p Proposal) Executed() bool { return p.Status == StatusExecuted }

// HasVoted reports whether voter appears in either vote list.
func (p Proposal) HasVoted(voter string) bool {
	for _, v := range p.VotesFor {
		if v.Voter == voter {
			return true
		}
	}
	for _, v := range p.VotesAgainst {
		if v.Voter == voter {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so that buffered writes never alias committed state.
func (p Proposal) Clone() Proposal {
	out := p
	out.Tags = cloneSlice(p.Tags)
	out.VotesFor = cloneSlice(p.VotesFor)
	out.VotesAgainst = cloneSlice(p.VotesAgainst)
	out.Voters = cloneSlice(p.Voters)
	if p.Amount != nil {
		a := *p.Amount
		out.Amount = &a
	}
	if p.Quorum != nil {
		q := *p.Quorum
		out.Quorum = &q
	}
	if p.Deadline != nil {
		d := *p.Deadline
		out.Deadline = &d
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
