package engine

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/config"
	"github.com/daoledger/daoledger/internal/governance"
	"github.com/daoledger/daoledger/internal/journal"
	"github.com/daoledger/daoledger/internal/notification"
	"github.com/daoledger/daoledger/internal/settlement"
	"github.com/daoledger/daoledger/internal/state"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Send(_ context.Context, ev notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Kind
	}
	return out
}

func testGenesis() config.Genesis {
	return config.Genesis{
		Owner:          "owner",
		TotalSupply:    amount.New(1_000_040),
		FundingAccount: "owner",
		PurchaseRate:   decimal.RequireFromString("5"),
		Allocations: []config.Allocation{
			{Account: "owner", Role: state.RoleCore, Balance: amount.New(1_000_000)},
			{Account: "carol", Role: state.RoleCommunity, Balance: amount.New(30)},
			{Account: "dave", Role: state.RoleCommunity, Balance: amount.New(10)},
		},
	}
}

func startEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Genesis.Owner == "" {
		opts.Genesis = testGenesis()
	}
	e := New(opts)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	return e
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func assertConserved(t *testing.T, e *Engine) {
	t.Helper()
	s, err := e.Supply()
	require.NoError(t, err)
	sum, ok := s.Circulating.Add(s.TokenPool)
	require.True(t, ok)
	assert.Equal(t, s.Total, sum, "balances plus pool must equal total supply")
}

func ptr(a amount.Amount) *amount.Amount { return &a }

func TestGovernanceScenario(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, Options{})

	_, err := e.RegisterAccount(ctx, "owner", "alice", amount.Zero)
	require.NoError(t, err)
	require.NoError(t, e.AssignRole(ctx, "owner", "alice", "community"))
	require.NoError(t, e.Transfer(ctx, "owner", "alice", amount.New(100), ""))
	assert.Equal(t, amount.New(100), e.BalanceOf("alice"))
	assert.Equal(t, amount.New(999_900), e.BalanceOf("owner"))

	p, err := e.CreateProposal(ctx, "alice", governance.Draft{Title: "P1", Amount: ptr(amount.New(50)), Target: "bob"})
	require.NoError(t, err)
	_, err = e.Vote(ctx, "carol", p.ID, true)
	require.NoError(t, err)
	_, err = e.Vote(ctx, "dave", p.ID, false)
	require.NoError(t, err)

	p, err = e.Finalize(ctx, "owner", p.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusAccepted, p.Status)

	p, err = e.Execute(ctx, "owner", p.ID)
	require.NoError(t, err)
	assert.True(t, p.Executed())
	assert.Equal(t, amount.New(999_850), e.BalanceOf("owner"))
	assert.Equal(t, amount.New(50), e.BalanceOf("bob"))

	_, err = e.Execute(ctx, "owner", p.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyExecuted))
	assert.Equal(t, amount.New(999_850), e.BalanceOf("owner"))
	assert.Equal(t, amount.New(50), e.BalanceOf("bob"))
	assertConserved(t, e)
}

func TestSettlementScenario(t *testing.T) {
	ctx := context.Background()
	dir := settlement.NewDirectory()
	dir.Register("service-x", settlement.ReceiverFunc(func(context.Context, settlement.Notice) ([]byte, error) {
		return []byte(`"60"`), nil
	}))
	e := startEngine(t, Options{Receivers: dir})

	_, err := e.RegisterAccount(ctx, "owner", "alice", amount.Zero)
	require.NoError(t, err)
	_, err = e.RegisterAccount(ctx, "owner", "service-x", amount.Zero)
	require.NoError(t, err)
	require.NoError(t, e.Transfer(ctx, "owner", "alice", amount.New(500), ""))

	ticket, err := e.TransferCall(ctx, "alice", "service-x", amount.New(100), "", "")
	require.NoError(t, err)
	out, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)

	assert.Equal(t, amount.New(40), out.Used)
	assert.Equal(t, amount.New(60), out.Refunded)
	assert.Equal(t, amount.New(460), e.BalanceOf("alice"))
	assert.Equal(t, amount.New(40), e.BalanceOf("service-x"))
	assert.Zero(t, e.PendingTransfers())
	assertConserved(t, e)
}

func TestTransferCallRejectedUpFront(t *testing.T) {
	e := startEngine(t, Options{})
	_, err := e.TransferCall(context.Background(), "owner", "owner", amount.New(1), "", "")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransfer))
	_, err = e.TransferCall(context.Background(), "owner", "ghost", amount.New(1), "", "")
	assert.True(t, apperr.IsCode(err, apperr.CodeAccountNotRegistered))
	assert.Zero(t, e.PendingTransfers())
}

func TestResolveUnknownTransfer(t *testing.T) {
	e := startEngine(t, Options{})
	_, err := e.ResolveTransfer(context.Background(), settlement.Continuation{ID: uuid.New()}, settlement.Response{})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
}

func TestFailedInvocationLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	events := &recordingNotifier{}
	e := startEngine(t, Options{Journal: j, Notifier: events})

	before, _ := j.Entries(ctx)
	p, err := e.CreateProposal(ctx, "owner", governance.Draft{Title: "too big", Amount: ptr(amount.New(2_000_000)), Target: "bob"})
	require.NoError(t, err)
	_, err = e.Vote(ctx, "owner", p.ID, true)
	require.NoError(t, err)
	_, err = e.Finalize(ctx, "owner", p.ID)
	require.NoError(t, err)

	_, err = e.Execute(ctx, "owner", p.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientBalance))
	assert.False(t, e.Registered("bob"))

	after, _ := j.Entries(ctx)
	assert.Len(t, after, len(before)+3)
	assert.NotContains(t, events.kinds(), notification.KindProposalExecuted)
	assert.Contains(t, events.kinds(), notification.KindProposalFinalized)
}

func TestCallerRequired(t *testing.T) {
	e := startEngine(t, Options{})
	err := e.Transfer(context.Background(), "", "owner", amount.New(1), "")
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
}

func TestRoleWithoutRegistrationGrantsNothing(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, Options{})

	require.NoError(t, e.AssignRole(ctx, "owner", "zed", "core"))
	assert.False(t, e.Registered("zed"))

	_, err := e.CreateProposal(ctx, "zed", governance.Draft{Title: "sneaky"})
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "create: %v", err)

	p, err := e.CreateProposal(ctx, "carol", governance.Draft{Title: "fine", Amount: ptr(amount.New(1)), Target: "carol"})
	require.NoError(t, err)
	_, err = e.Vote(ctx, "zed", p.ID, true)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "vote: %v", err)
	_, err = e.Finalize(ctx, "zed", p.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "finalize: %v", err)

	_, err = e.Vote(ctx, "carol", p.ID, true)
	require.NoError(t, err)
	_, err = e.Finalize(ctx, "owner", p.ID)
	require.NoError(t, err)
	_, err = e.Execute(ctx, "zed", p.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "execute: %v", err)

	_, err = e.RegisterAccount(ctx, "owner", "zed", amount.Zero)
	require.NoError(t, err)
	_, err = e.Execute(ctx, "zed", p.ID)
	require.NoError(t, err)
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()
	g := testGenesis()
	g.TotalSupply = amount.New(1_000_140)
	e := startEngine(t, Options{Genesis: g})

	tokens, err := e.Purchase(ctx, "erin", amount.New(20))
	require.NoError(t, err)
	assert.Equal(t, amount.New(100), tokens)
	assert.Equal(t, amount.New(100), e.BalanceOf("erin"))
	role, ok := e.RoleOf("erin")
	require.True(t, ok)
	assert.Equal(t, state.RoleCommunity, role)

	_, err = e.Purchase(ctx, "erin", amount.New(1))
	assert.True(t, apperr.IsCode(err, apperr.CodePoolExhausted))
	_, err = e.Purchase(ctx, "erin", amount.Zero)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))

	_, err = e.Purchase(ctx, "owner", amount.New(1))
	assert.True(t, apperr.IsCode(err, apperr.CodePoolExhausted))
	role, _ = e.RoleOf("owner")
	assert.Equal(t, state.RoleCore, role)
	assertConserved(t, e)
}

func TestFractionalPurchaseRate(t *testing.T) {
	g := testGenesis()
	g.TotalSupply = amount.New(1_000_140)
	g.PurchaseRate = decimal.RequireFromString("0.3")
	e := startEngine(t, Options{Genesis: g})

	tokens, err := e.Purchase(context.Background(), "erin", amount.New(7))
	require.NoError(t, err)
	assert.Equal(t, amount.New(2), tokens)

	_, err = e.Purchase(context.Background(), "erin", amount.New(3))
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
}

func TestRegisterAccountRefunds(t *testing.T) {
	ctx := context.Background()
	g := testGenesis()
	g.StorageMinBalance = amount.New(125)
	e := startEngine(t, Options{Genesis: g})

	_, err := e.RegisterAccount(ctx, "owner", "frank", amount.New(100))
	assert.True(t, apperr.IsCode(err, apperr.CodeStorageDepositTooLow))

	refund, err := e.RegisterAccount(ctx, "owner", "frank", amount.New(130))
	require.NoError(t, err)
	assert.Equal(t, amount.New(5), refund)

	refund, err = e.RegisterAccount(ctx, "owner", "frank", amount.New(130))
	require.NoError(t, err)
	assert.Equal(t, amount.New(130), refund)
	role, _ := e.RoleOf("frank")
	assert.Equal(t, state.RoleVisitor, role)
}

func TestRolesAndTeam(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, Options{})

	err := e.AssignRole(ctx, "carol", "dave", "core")
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
	err = e.AssignRole(ctx, "owner", "dave", "visitor")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidRole))
	require.NoError(t, e.AssignRole(ctx, "owner", "dave", "finance"))

	require.NoError(t, e.AddTeamMember(ctx, "owner", "gina"))
	require.NoError(t, e.AddTeamMember(ctx, "owner", "gina"))
	assert.Equal(t, []string{"gina"}, e.TeamMembers())
	assert.True(t, e.Registered("gina"))

	err = e.RemoveTeamMember(ctx, "dave", "gina")
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
	require.NoError(t, e.RemoveTeamMember(ctx, "owner", "gina"))
	assert.Empty(t, e.TeamMembers())

	roles := map[string]state.Role{}
	for _, r := range e.Roles() {
		roles[r.Account] = r.Role
	}
	assert.Equal(t, state.RoleFinance, roles["dave"])
	assert.Equal(t, state.RoleCore, roles["gina"])
}

func TestDividendPlan(t *testing.T) {
	ctx := context.Background()
	events := &recordingNotifier{}
	e := startEngine(t, Options{Notifier: events})

	_, err := e.Dividends(ctx, "carol", amount.New(1_000))
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))

	plan, err := e.Dividends(ctx, "owner", amount.New(1_000_040))
	require.NoError(t, err)
	shares := map[string]amount.Amount{}
	for _, p := range plan {
		shares[p.Account] = p.Share
	}
	assert.Equal(t, amount.New(1_000_000), shares["owner"])
	assert.Equal(t, amount.New(30), shares["carol"])
	assert.Equal(t, amount.New(10), shares["dave"])
	assert.Contains(t, events.kinds(), notification.KindDividendPayout)
	assert.Equal(t, amount.New(1_000_000), e.BalanceOf("owner"))
}

func TestJournalTimestampsHaveMicrosecondPrecision(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	now := time.Date(2026, 5, 4, 10, 0, 0, 123456789, time.UTC)
	e := startEngine(t, Options{Journal: j, Clock: func() time.Time { return now }})

	p, err := e.CreateProposal(ctx, "carol", governance.Draft{Title: "stamped"})
	require.NoError(t, err)
	want := now.Truncate(time.Microsecond)
	assert.Equal(t, want, p.CreatedAt)

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Equal(t, want, entry.At)
	}
}

func TestReplayRebuildsState(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	first := startEngine(t, Options{Journal: j})

	_, err := first.RegisterAccount(ctx, "owner", "alice", amount.Zero)
	require.NoError(t, err)
	require.NoError(t, first.AssignRole(ctx, "owner", "alice", "community"))
	require.NoError(t, first.Transfer(ctx, "owner", "alice", amount.New(100), "seed"))
	p, err := first.CreateProposal(ctx, "alice", governance.Draft{Title: "replayed", Amount: ptr(amount.New(5)), Target: "bob"})
	require.NoError(t, err)
	_, err = first.Vote(ctx, "alice", p.ID, true)
	require.NoError(t, err)
	first.Stop()

	// a different genesis must not matter once the journal exists
	g := testGenesis()
	g.Owner = "someone.else"
	second := startEngine(t, Options{Journal: j, Genesis: g})

	assert.Equal(t, first.Balances(), second.Balances())
	assert.Equal(t, first.Proposals(), second.Proposals())
	assert.False(t, second.Registered("someone.else"))

	_, err = second.Vote(ctx, "alice", p.ID, false)
	assert.True(t, apperr.IsCode(err, apperr.CodeDuplicateVote))
	p2, err := second.CreateProposal(ctx, "alice", governance.Draft{Title: "next"})
	require.NoError(t, err)
	assert.Equal(t, p.ID+1, p2.ID)
}

func TestUnresolvedTransfersResumeAfterRestart(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	stuck := settlement.NewDirectory()
	stuck.Register("service-x", settlement.ReceiverFunc(func(context.Context, settlement.Notice) ([]byte, error) {
		<-release
		return nil, context.Canceled
	}))

	j := journal.NewMemory()
	first := New(Options{Genesis: testGenesis(), Journal: j, Receivers: stuck, Workers: 1})
	require.NoError(t, first.Start(ctx))
	_, err := first.RegisterAccount(ctx, "owner", "service-x", amount.Zero)
	require.NoError(t, err)
	_, err = first.TransferCall(ctx, "owner", "service-x", amount.New(100), "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.PendingTransfers())

	// copy the journal as it stood while the receiver call was in flight
	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	restored := journal.NewMemory()
	for _, entry := range entries {
		require.NoError(t, restored.Append(ctx, entry))
	}
	close(release)
	first.Stop()

	healthy := settlement.NewDirectory()
	resolved := make(chan struct{})
	healthy.Register("service-x", settlement.ReceiverFunc(func(context.Context, settlement.Notice) ([]byte, error) {
		defer close(resolved)
		return []byte(`"0"`), nil
	}))
	second := startEngine(t, Options{Journal: restored, Receivers: healthy})

	select {
	case <-resolved:
	case <-time.After(5 * time.Second):
		t.Fatal("unresolved transfer was not dispatched again")
	}
	require.Eventually(t, func() bool { return second.PendingTransfers() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, amount.New(100), second.BalanceOf("service-x"))
	assertConserved(t, second)
}

func TestRandomTransfersConserveSupply(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, Options{})
	accounts := []string{"owner", "carol", "dave", "alice", "bob"}
	for _, id := range accounts[3:] {
		_, err := e.RegisterAccount(ctx, "owner", id, amount.Zero)
		require.NoError(t, err)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		from := accounts[rng.Intn(len(accounts))]
		to := accounts[rng.Intn(len(accounts))]
		// failures are expected; only the totals matter here
		_ = e.Transfer(ctx, from, to, amount.New(uint64(rng.Intn(2_000))), "")
	}
	assertConserved(t, e)
}
