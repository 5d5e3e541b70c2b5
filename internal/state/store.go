// Package state holds the mutable shared state of the organization: balances,
// roles, the known-account listing, the team roster, proposals and the supply
// totals.
//
// State is only changed through a Tx. A Tx buffers every write in an overlay;
// reads fall through to the committed state. Commit applies the overlay in one
// step, and dropping a Tx without committing discards everything it wrote.
// Store is not safe for concurrent use: the caller serializes transactions.
package state

import (
	"sort"
	"time"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/notification"
)

// Store is the committed state.
type Store struct {
	balances       map[string]amount.Amount
	roles          map[string]Role
	known          []string
	knownSet       map[string]struct{}
	team           []string
	proposals      map[uint64]Proposal
	proposalIDs    []uint64
	nextProposalID uint64
	totalSupply    amount.Amount
	tokenPool      amount.Amount
	initialized    bool
}

// NewStore returns an empty store awaiting genesis.
func NewStore() *Store {
	return &Store{
		balances:  make(map[string]amount.Amount),
		roles:     make(map[string]Role),
		knownSet:  make(map[string]struct{}),
		proposals: make(map[uint64]Proposal),
	}
}

// Begin opens a transaction stamped with the current time.
func (s *Store) Begin() *Tx {
	return s.BeginAt(time.Now().UTC())
}

// BeginAt opens a transaction whose clock reads at. Replaying a journal
// entry uses the entry's original timestamp.
func (s *Store) BeginAt(at time.Time) *Tx {
	return &Tx{
		store:          s,
		at:             at,
		balances:       make(map[string]amount.Amount),
		roles:          make(map[string]Role),
		knownSet:       make(map[string]struct{}),
		proposals:      make(map[uint64]Proposal),
		nextProposalID: s.nextProposalID,
		totalSupply:    s.totalSupply,
		tokenPool:      s.tokenPool,
		initialized:    s.initialized,
	}
}

// Effects are the side effects a committed transaction releases: events for
// the notification sink and hooks registered with OnCommit.
type Effects struct {
	Events []notification.Event
	Hooks  []func()
}

// Tx is a buffered unit of work.
type Tx struct {
	store *Store
	at    time.Time
	done  bool

	balances       map[string]amount.Amount
	roles          map[string]Role
	known          []string
	knownSet       map[string]struct{}
	team           []string
	teamSet        bool
	proposals      map[uint64]Proposal
	newIDs         []uint64
	nextProposalID uint64
	totalSupply    amount.Amount
	tokenPool      amount.Amount
	initialized    bool

	events []notification.Event
	hooks  []func()
}

// Now is the invocation time.
func (tx *Tx) Now() time.Time { return tx.at }

// Registered reports whether id has a balance entry.
func (tx *Tx) Registered(id string) bool {
	_, ok := tx.balance(id)
	return ok
}

// Balance returns the balance of id and whether it is registered.
func (tx *Tx) Balance(id string) (amount.Amount, bool) {
	return tx.balance(id)
}

func (tx *Tx) balance(id string) (amount.Amount, bool) {
	if b, ok := tx.balances[id]; ok {
		return b, true
	}
	b, ok := tx.store.balances[id]
	return b, ok
}

// SetBalance writes a balance entry, creating it if needed. Only the ledger
// and the registry should call it.
func (tx *Tx) SetBalance(id string, b amount.Amount) {
	tx.balances[id] = b
}

// Role returns the role recorded for id.
func (tx *Tx) Role(id string) (Role, bool) {
	if r, ok := tx.roles[id]; ok {
		return r, true
	}
	r, ok := tx.store.roles[id]
	return r, ok
}

// SetRole records a role for id.
func (tx *Tx) SetRole(id string, r Role) {
	tx.roles[id] = r
}

// IsKnown reports whether id is in the known-accounts listing.
func (tx *Tx) IsKnown(id string) bool {
	if _, ok := tx.knownSet[id]; ok {
		return true
	}
	_, ok := tx.store.knownSet[id]
	return ok
}

// AddKnown appends id to the known-accounts listing once.
func (tx *Tx) AddKnown(id string) {
	if tx.IsKnown(id) {
		return
	}
	tx.known = append(tx.known, id)
	tx.knownSet[id] = struct{}{}
}

// Known returns the known-accounts listing in registration order.
func (tx *Tx) Known() []string {
	out := make([]string, 0, len(tx.store.known)+len(tx.known))
	out = append(out, tx.store.known...)
	return append(out, tx.known...)
}

// Team returns the team roster.
func (tx *Tx) Team() []string {
	if tx.teamSet {
		return append([]string(nil), tx.team...)
	}
	return append([]string(nil), tx.store.team...)
}

// SetTeam replaces the team roster.
func (tx *Tx) SetTeam(team []string) {
	tx.team = append([]string(nil), team...)
	tx.teamSet = true
}

// Proposal returns a private copy of the proposal.
func (tx *Tx) Proposal(id uint64) (Proposal, bool) {
	if p, ok := tx.proposals[id]; ok {
		return p.Clone(), true
	}
	p, ok := tx.store.proposals[id]
	if !ok {
		return Proposal{}, false
	}
	return p.Clone(), true
}

// PutProposal buffers a proposal write.
func (tx *Tx) PutProposal(p Proposal) {
	if _, exists := tx.Proposal(p.ID); !exists {
		tx.newIDs = append(tx.newIDs, p.ID)
	}
	tx.proposals[p.ID] = p.Clone()
}

// AllocateProposalID returns the next unused proposal id.
func (tx *Tx) AllocateProposalID() uint64 {
	id := tx.nextProposalID
	tx.nextProposalID++
	return id
}

// ProposalIDs returns every proposal id in creation order.
func (tx *Tx) ProposalIDs() []uint64 {
	out := make([]uint64, 0, len(tx.store.proposalIDs)+len(tx.newIDs))
	out = append(out, tx.store.proposalIDs...)
	out = append(out, tx.newIDs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TotalSupply returns the supply minted at genesis.
func (tx *Tx) TotalSupply() amount.Amount { return tx.totalSupply }

// TokenPool returns the unsold remainder of the supply.
func (tx *Tx) TokenPool() amount.Amount { return tx.tokenPool }

// SetTokenPool updates the unsold remainder.
func (tx *Tx) SetTokenPool(a amount.Amount) { tx.tokenPool = a }

// Initialized reports whether genesis has run.
func (tx *Tx) Initialized() bool { return tx.initialized }

// Initialize records the genesis supply. It may only succeed once per store.
func (tx *Tx) Initialize(totalSupply, tokenPool amount.Amount) bool {
	if tx.initialized {
		return false
	}
	tx.totalSupply = totalSupply
	tx.tokenPool = tokenPool
	tx.initialized = true
	return true
}

// Emit buffers an event; it is released only if the transaction commits.
func (tx *Tx) Emit(e notification.Event) {
	tx.events = append(tx.events, e)
}

// OnCommit registers fn to run after a successful commit.
func (tx *Tx) OnCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}

// Commit applies the overlay to the store and returns the released effects.
// A transaction commits at most once.
func (tx *Tx) Commit() Effects {
	if tx.done {
		return Effects{}
	}
	tx.done = true
	s := tx.store
	for id, b := range tx.balances {
		s.balances[id] = b
	}
	for id, r := range tx.roles {
		s.roles[id] = r
	}
	for _, id := range tx.known {
		if _, ok := s.knownSet[id]; !ok {
			s.known = append(s.known, id)
			s.knownSet[id] = struct{}{}
		}
	}
	if tx.teamSet {
		s.team = tx.team
	}
	for id, p := range tx.proposals {
		s.proposals[id] = p
	}
	s.proposalIDs = append(s.proposalIDs, tx.newIDs...)
	s.nextProposalID = tx.nextProposalID
	s.totalSupply = tx.totalSupply
	s.tokenPool = tx.tokenPool
	s.initialized = tx.initialized
	return Effects{Events: tx.events, Hooks: tx.hooks}
}

// Rollback marks the transaction finished without applying it.
func (tx *Tx) Rollback() {
	tx.done = true
}
